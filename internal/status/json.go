package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Door          string       `json:"door"`
	Alarm         string       `json:"alarm"`
	Buzzer        bool         `json:"buzzer"`
	WeightG       float64      `json:"weight_g"`
	TemperatureC  float64      `json:"temperature_c"`
	StatusCode    int          `json:"status_code"`
	Temperature   string       `json:"temperature_status"`
	TareOffset    int64        `json:"tare_offset"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sync          SyncJSON     `json:"sync"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SyncJSON reports the host clock synchronization.
type SyncJSON struct {
	State    string `json:"state"`
	Mode     string `json:"mode"`
	Synced   bool   `json:"synced"`
	LastSync string `json:"last_sync,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	DoorChange   int `json:"door_change"`
	WeightChange int `json:"weight_change"`
	StatusReport int `json:"status_report"`
	TareButton   int `json:"tare_button"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID   string `json:"device_id"`
	PollMs     int64  `json:"poll_ms"`
	SerialPort string `json:"serial_port"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.State

	door := "CLOSED"
	if st.Door.IsOpen {
		door = "OPEN"
	}

	inner := StatusInner{
		Door:          door,
		Alarm:         st.Alarm.Phase.String(),
		Buzzer:        st.Alarm.BuzzerOn,
		WeightG:       st.Baseline,
		TemperatureC:  st.Temperature.LastValue,
		StatusCode:    int(st.Temperature.Code),
		Temperature:   st.Temperature.Code.String(),
		TareOffset:    st.TareOffset,
		Ready:         st.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Sync: SyncJSON{
			State:  st.Sync.String(),
			Mode:   string(st.SyncMode),
			Synced: st.ClockSynced,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			DoorChange:   st.Counts.DoorChange,
			WeightChange: st.Counts.WeightChange,
			StatusReport: st.Counts.StatusReport,
			TareButton:   st.Counts.TareButton,
		},
		Config: ConfigJSON{
			DeviceID:   snap.Config.DeviceID,
			PollMs:     snap.Config.PollMs,
			SerialPort: snap.Config.SerialPort,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if st.LastSync != 0 {
		inner.Sync.LastSync = time.UnixMicro(st.LastSync).UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
