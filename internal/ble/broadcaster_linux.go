//go:build linux

package ble

import (
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// GATTBroadcaster serves this device's identity and keepalive
// characteristics so that peers scanning for the service can subscribe.
type GATTBroadcaster struct {
	adapter   *bluetooth.Adapter
	opts      ListenerOptions
	localName string

	identity  bluetooth.Characteristic
	keepalive bluetooth.Characteristic
}

// NewGATTBroadcaster prepares a broadcaster on adapter. Call Start before
// sending keepalives.
func NewGATTBroadcaster(adapter *bluetooth.Adapter, opts ListenerOptions, localName string) *GATTBroadcaster {
	return &GATTBroadcaster{adapter: adapter, opts: opts, localName: localName}
}

// Start registers the GATT service with the given identity payload and
// begins advertising the service UUID.
func (b *GATTBroadcaster) Start(identity []byte) error {
	svcUUID, err := bluetooth.ParseUUID(b.opts.ServiceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	idUUID, err := bluetooth.ParseUUID(b.opts.IdentityCharUUID)
	if err != nil {
		return fmt.Errorf("ble: parse identity UUID: %w", err)
	}
	kaUUID, err := bluetooth.ParseUUID(b.opts.KeepaliveCharUUID)
	if err != nil {
		return fmt.Errorf("ble: parse keepalive UUID: %w", err)
	}

	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	flags := bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission
	err = b.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{Handle: &b.identity, UUID: idUUID, Value: identity, Flags: flags},
			{Handle: &b.keepalive, UUID: kaUUID, Value: []byte{0}, Flags: flags},
		},
	})
	if err != nil {
		return fmt.Errorf("ble: add GATT service: %w", err)
	}

	adv := b.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.localName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	slog.Info("[BLE] advertising", "service", b.opts.ServiceUUID, "name", b.localName)
	return nil
}

func (b *GATTBroadcaster) SendKeepalive(value []byte) error {
	if _, err := b.keepalive.Write(value); err != nil {
		return fmt.Errorf("ble: write keepalive: %w", err)
	}
	return nil
}
