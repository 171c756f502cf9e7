package types

// BatteryInfo is the last battery sample seen by the daemon.
type BatteryInfo struct {
	Available      bool `json:"available"`
	Percent        int  `json:"percent"`
	PowerKnown     bool `json:"power_known"`
	PowerConnected bool `json:"power_connected"`
}

// PlugInfo is the last observed smart plug state.
type PlugInfo struct {
	Known bool `json:"known"`
	On    bool `json:"on"`
}
