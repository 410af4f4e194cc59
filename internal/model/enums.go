package model

// TypePort is the hardware personality family of a port (pty).
type TypePort string

const (
	TypeNotConfigured TypePort = "not_configured"
	TypeIn            TypePort = "binary_sensor"
	TypeOut           TypePort = "out"
	TypeADC           TypePort = "analog_sensor"
	TypeDSen          TypePort = "digital_sensor"
	TypeI2C           TypePort = "i2c"
)

var typePortCodes = map[string]TypePort{
	"255": TypeNotConfigured,
	"0":   TypeIn,
	"1":   TypeOut,
	"2":   TypeADC,
	"3":   TypeDSen,
	"4":   TypeI2C,
}

type ModeIn string

const (
	ModePress        ModeIn = "press"
	ModePressRelease ModeIn = "press_release"
	ModeRelease      ModeIn = "release"
	ModeClick        ModeIn = "click"
)

var modeInCodes = map[string]ModeIn{
	"0": ModePress,
	"1": ModePressRelease,
	"2": ModeRelease,
	"3": ModeClick,
}

type ModeOut string

const (
	ModeRelay     ModeOut = "relay"
	ModePWM       ModeOut = "pwm"
	ModeDS2413    ModeOut = "one_wire_modul"
	ModeRelayLink ModeOut = "relay_link"
	ModeWS281X    ModeOut = "rgb_tape"
)

var modeOutCodes = map[string]ModeOut{
	"0": ModeRelay,
	"1": ModePWM,
	"2": ModeDS2413,
	"3": ModeRelayLink,
	"4": ModeWS281X,
}

type TypeDSensor string

const (
	SensorDHT11      TypeDSensor = "dht11"
	SensorDHT22      TypeDSensor = "dht22"
	SensorOneWire    TypeDSensor = "one_wire"
	SensorIButton    TypeDSensor = "i_button"
	SensorOneWireBus TypeDSensor = "one_wire_bus"
	SensorWiegand26  TypeDSensor = "wiegand_26"
)

var typeDSensorCodes = map[string]TypeDSensor{
	"1": SensorDHT11,
	"2": SensorDHT22,
	"3": SensorOneWire,
	"4": SensorIButton,
	"5": SensorOneWireBus,
	"6": SensorWiegand26,
}

// ModeSensor is the threshold behaviour of 1-Wire and ADC ports.
type ModeSensor string

const (
	ModeNorm        ModeSensor = "norm"
	ModeMore        ModeSensor = "more"
	ModeLess        ModeSensor = "less"
	ModeLessAndMore ModeSensor = "less_and_more"
)

var modeSensorCodes = map[string]ModeSensor{
	"0": ModeNorm,
	"1": ModeMore,
	"2": ModeLess,
	"3": ModeLessAndMore,
}

type ModeWiegand string

const (
	WiegandD1 ModeWiegand = "d1"
	WiegandD0 ModeWiegand = "d0"
)

var modeWiegandCodes = map[string]ModeWiegand{
	"0": WiegandD1,
	"1": WiegandD0,
}

type ModeI2C string

const (
	I2CNotConfigured ModeI2C = "nc"
	I2CSDA           ModeI2C = "sda"
	I2CSCL           ModeI2C = "scl"
)

var modeI2CCodes = map[string]ModeI2C{
	"0": I2CNotConfigured,
	"1": I2CSDA,
	"2": I2CSCL,
}

// DeviceI2C is the peripheral attached to an SDA port.
type DeviceI2C string

const (
	DeviceNone     DeviceI2C = "nc"
	DeviceHTU21D   DeviceI2C = "htu21d"
	DeviceBH1750   DeviceI2C = "bh1750"
	DeviceTSL2591  DeviceI2C = "tsl2591"
	DeviceSSD1306  DeviceI2C = "ssd1306"
	DeviceBMP180   DeviceI2C = "bmp180"
	DeviceBMx280   DeviceI2C = "bmx280"
	DeviceMAX44009 DeviceI2C = "max44009"
	DeviceHTU31D   DeviceI2C = "htu31d"
	DeviceSHT31    DeviceI2C = "sht31"
	DeviceSCD4x    DeviceI2C = "scd4x"
	DeviceINA226   DeviceI2C = "ina226"
	DeviceMCP230XX DeviceI2C = "mcp230xx"
	DevicePCA9685  DeviceI2C = "pca9685"
)

var deviceI2CCodes = map[string]DeviceI2C{
	"0":  DeviceNone,
	"1":  DeviceHTU21D,
	"2":  DeviceBH1750,
	"3":  DeviceTSL2591,
	"4":  DeviceSSD1306,
	"5":  DeviceBMP180,
	"6":  DeviceBMx280,
	"7":  DeviceMAX44009,
	"8":  DeviceHTU31D,
	"9":  DeviceSHT31,
	"10": DeviceSCD4x,
	"11": DeviceINA226,
	"20": DeviceMCP230XX,
	"21": DevicePCA9685,
}

// I2CDeviceByName maps the lower-case names returned by a bus scan.
func I2CDeviceByName(name string) (DeviceI2C, bool) {
	for _, d := range deviceI2CCodes {
		if string(d) == name && d != DeviceNone {
			return d, true
		}
	}
	return "", false
}

type ServerType string

const (
	ServerHTTP ServerType = "http"
	ServerMQTT ServerType = "mqtt"
)

var serverTypeCodes = map[string]ServerType{
	"0": ServerHTTP,
	"1": ServerMQTT,
}

type UART string

const (
	UARTDisabled UART = "disabled"
	UARTGSM      UART = "gsm"
	UARTRS485    UART = "rs485"
)

var uartCodes = map[string]UART{
	"0": UARTDisabled,
	"1": UARTGSM,
	"2": UARTRS485,
}

// NetAction selects when the port action fires relative to the server link.
type NetAction string

const (
	NetDefault       NetAction = "default"
	NetServerFailure NetAction = "server_failure"
	NetActions       NetAction = "actions"
)

var netActionCodes = map[string]NetAction{
	"0": NetDefault,
	"1": NetServerFailure,
	"2": NetActions,
}

type PIDMode string

const (
	PIDHeat PIDMode = "heat"
	PIDCool PIDMode = "cool"
	PIDAuto PIDMode = "auto"
)

var pidModeCodes = map[string]PIDMode{
	"0": PIDHeat,
	"1": PIDCool,
	"2": PIDAuto,
}

func decodeEnum[T ~string](field, code string, codes map[string]T) (T, error) {
	v, ok := codes[code]
	if !ok {
		var zero T
		return zero, &ValidationError{Field: field, Value: code, Reason: "unknown code"}
	}
	return v, nil
}

// decodeEnumDefault treats an absent or empty code as def.
func decodeEnumDefault[T ~string](field, code string, codes map[string]T, def T) (T, error) {
	if code == "" {
		return def, nil
	}
	return decodeEnum(field, code, codes)
}
