package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// Values reported when a page does not carry the field.
const (
	UnknownUptime      = -1
	UnknownTemperature = -100
)

var (
	uptimePattern   = regexp.MustCompile(`Uptime:\s*(\d+)\s*d\s*(\d+):(\d+)`)
	tempPattern     = regexp.MustCompile(`Temp:\s*(-?\d+(?:\.\d+)?)`)
	firmwarePattern = regexp.MustCompile(`\(fw:\s*([^)]+)\)`)
	portLinkPattern = regexp.MustCompile(`/sec/\?pt=(\d+)`)
	valuePattern    = regexp.MustCompile(`Val:\s*([^\s<]+)`)
)

func findText(page string, pattern *regexp.Regexp) []string {
	doc, err := parse(page)
	if err != nil {
		return nil
	}
	for _, t := range textNodes(doc) {
		if m := pattern.FindStringSubmatch(t); m != nil {
			return m
		}
	}
	return nil
}

// Uptime returns the controller uptime in minutes from the cf=1 page.
func Uptime(page string) int {
	m := findText(page, uptimePattern)
	if m == nil {
		return UnknownUptime
	}
	days, _ := strconv.Atoi(m[1])
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	return days*24*60 + hours*60 + minutes
}

// BoardTemperature returns the on-board sensor reading from the cf=1 page.
func BoardTemperature(page string) float64 {
	m := findText(page, tempPattern)
	if m == nil {
		return UnknownTemperature
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return UnknownTemperature
	}
	return v
}

// Firmware returns the firmware version printed on the start page.
func Firmware(page string) string {
	m := findText(page, firmwarePattern)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// PortCount returns the highest port index to scrape, judged from the
// controller's index page.
func PortCount(index string) int {
	if strings.Contains(index, "IN/OUT") {
		if strings.Contains(index, "[44,") {
			return 45
		}
		return 37
	}
	highest := 0
	for _, m := range portLinkPattern.FindAllStringSubmatch(index, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// ThermostatEnabled reads the regulation state of a 1-Wire port page: the
// mode selector is followed by "DIS" while the loop is disabled.
func ThermostatEnabled(page string) (bool, error) {
	doc, err := parse(page)
	if err != nil {
		return false, err
	}
	sel := findByName(doc, "select", "m")
	if sel == nil {
		return false, errors.New("mode selector not found")
	}
	for s := sel.NextSibling; s != nil; s = s.NextSibling {
		text := s.Data
		if s.Type == html.ElementNode {
			text = textOf(s)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		return !strings.Contains(text, "DIS"), nil
	}
	return true, nil
}

// ThermostatSetPoint reads the configured set-point of a 1-Wire port page.
func ThermostatSetPoint(page string) (float64, error) {
	doc, err := parse(page)
	if err != nil {
		return 0, err
	}
	in := findByName(doc, "input", protocol.KeyMisc)
	if in == nil {
		return 0, errors.New("set-point input not found")
	}
	v, _ := attr(in, "value")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid set-point %q", v)
	}
	return f, nil
}

// PIDParams returns the regulator form plus its current measurement under
// "value" when the page shows one.
func PIDParams(page string) (map[string]string, error) {
	r, err := FormRecord(page)
	if err != nil {
		return nil, err
	}
	params := r.Map()
	if m := findText(page, valuePattern); m != nil {
		params["value"] = m[1]
	}
	return params, nil
}

// I2CDevices lists the supported devices named in a bus scan response, in
// the order they were reported.
func I2CDevices(body string) []model.DeviceI2C {
	var out []model.DeviceI2C
	body = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(body)
	for _, line := range strings.Split(body, "\n") {
		for _, word := range strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if d, ok := model.I2CDeviceByName(word); ok {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
