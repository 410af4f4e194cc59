package db

// CLI helpers open the database for a single change.

func SetControllerEnabledCLI(dbPath, id string, enabled bool) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	return SetControllerEnabled(dbConn, id, enabled)
}

func SetRefreshConfigCLI(dbPath, id string) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	return SetRefreshConfig(dbConn, id, true)
}

func ListControllersCLI(dbPath string) ([]Entry, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()
	return GetControllers(dbConn)
}
