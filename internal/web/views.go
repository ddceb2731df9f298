package web

import (
	"encoding/hex"
	"time"

	"github.com/chaz8081/sonar-client/internal/ble"
	"github.com/chaz8081/sonar-client/internal/status"
)

// StatusView is the JSON shape of /status and websocket pushes.
type StatusView struct {
	Type   string        `json:"type"`
	State  string        `json:"state"`
	Expiry string        `json:"expiry,omitempty"`
	AsOf   string        `json:"asOf"`
	Detail *StatusDetail `json:"detail,omitempty"`
}

// StatusDetail carries the fields of states that have them.
type StatusDetail struct {
	Symptoms     []string `json:"symptoms,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	CheckinDate  string   `json:"checkinDate,omitempty"`
	ExposureDate string   `json:"exposureDate,omitempty"`
}

// PeerView is one entry of /peers.
type PeerView struct {
	Peer                string `json:"peer"`
	Phase               string `json:"phase"`
	Identity            string `json:"identity,omitempty"`
	IdentitySubscribed  bool   `json:"identitySubscribed"`
	KeepaliveSubscribed bool   `json:"keepaliveSubscribed"`
	RSSI                *int   `json:"rssi,omitempty"`
	LastSeen            string `json:"lastSeen"`
}

func newStatusView(s status.State, loc *time.Location, now time.Time) StatusView {
	v := StatusView{
		Type:  "status",
		State: string(s.Kind()),
		AsOf:  now.In(loc).Format(time.RFC3339),
	}
	if expiry, ok := status.ExpiryDate(s, loc); ok {
		v.Expiry = expiry.Format(time.RFC3339)
	}

	switch st := s.(type) {
	case status.Symptomatic:
		v.Detail = &StatusDetail{Symptoms: symptomStrings(st.Symptoms), StartDate: st.StartDate.In(loc).Format(time.RFC3339)}
	case status.Checkin:
		v.Detail = &StatusDetail{Symptoms: symptomStrings(st.Symptoms), CheckinDate: st.CheckinDate.In(loc).Format(time.RFC3339)}
	case status.Exposed:
		v.Detail = &StatusDetail{ExposureDate: st.ExposureDate.In(loc).Format(time.RFC3339)}
	}
	return v
}

func symptomStrings(s status.Symptoms) []string {
	out := make([]string, len(s))
	for i, x := range s {
		out[i] = string(x)
	}
	return out
}

func newPeerView(s ble.Session) PeerView {
	v := PeerView{
		Peer:                string(s.Peer),
		Phase:               s.Phase.String(),
		IdentitySubscribed:  s.IdentitySubscribed,
		KeepaliveSubscribed: s.KeepaliveSubscribed,
		LastSeen:            s.LastSeen.UTC().Format(time.RFC3339),
	}
	if s.Identity != nil {
		v.Identity = hex.EncodeToString(s.Identity)
	}
	if s.HasRSSI {
		rssi := s.RSSI
		v.RSSI = &rssi
	}
	return v
}
