// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	errs "github.com/soothill/budsctl/pkg/errors"
)

const bleReadBufferSize = 512

// BLE sends payloads over GATT using the platform Bluetooth stack.
type BLE struct {
	adapter    *bluetooth.Adapter
	enableOnce sync.Once
	enableErr  error
}

// NewBLE creates the BLE transport on the default adapter.
func NewBLE() *BLE {
	return &BLE{adapter: bluetooth.DefaultAdapter}
}

// Send connects to mac, writes the payload to the write characteristic, and
// returns the response. With a notify characteristic configured the response
// is the first notification within the timeout (timing out is an error);
// without one a direct read is attempted best-effort and nil is returned
// when the device offers nothing.
func (t *BLE) Send(ctx context.Context, mac string, payload []byte, opts BLEOptions) ([]byte, error) {
	t.enableOnce.Do(func() {
		t.enableErr = t.adapter.Enable()
	})
	if t.enableErr != nil {
		return nil, errs.NewTransportConnectError(mac, fmt.Errorf("could not enable BLE adapter: %w", t.enableErr))
	}

	parsedMAC, err := bluetooth.ParseMAC(mac)
	if err != nil {
		return nil, errs.NewTransportConnectError(mac, fmt.Errorf("invalid Bluetooth address: %w", err))
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: parsedMAC}}

	device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(opts.Timeout),
	})
	if err != nil {
		return nil, errs.NewTransportConnectError(mac, fmt.Errorf("BLE connect failed: %w", err))
	}
	defer device.Disconnect()

	writeChar, notifyChar, err := discoverCharacteristics(device, opts)
	if err != nil {
		return nil, err
	}

	notifyCh := make(chan []byte, 1)
	if notifyChar != nil {
		err = notifyChar.EnableNotifications(func(buf []byte) {
			data := make([]byte, len(buf))
			copy(data, buf)
			select {
			case notifyCh <- data:
			default:
			}
		})
		if err != nil {
			return nil, errs.NewTransportSendError("notify subscribe", err)
		}
	}

	if opts.WriteWithResponse {
		_, err = writeChar.Write(payload)
	} else {
		_, err = writeChar.WriteWithoutResponse(payload)
	}
	if err != nil {
		return nil, errs.NewTransportSendError("write", err)
	}

	if notifyChar != nil {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		select {
		case response := <-notifyCh:
			return response, nil
		case <-timer.C:
			return nil, errs.NewTransportTimeoutError("notify wait", mac)
		case <-ctx.Done():
			return nil, errs.NewTransportSendError("notify wait", ctx.Err())
		}
	}

	// No notify path: attempt a direct read from the write characteristic.
	buf := make([]byte, bleReadBufferSize)
	n, err := writeChar.Read(buf)
	if err != nil || n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// discoverCharacteristics resolves the write and optional notify
// characteristics on the plugin's service.
func discoverCharacteristics(device bluetooth.Device, opts BLEOptions) (write, notify *bluetooth.DeviceCharacteristic, err error) {
	serviceUUID, err := gattUUID(opts.ServiceUUID)
	if err != nil {
		return nil, nil, errs.NewTransportSendError("service discovery", err)
	}
	writeUUID, err := gattUUID(opts.WriteCharUUID)
	if err != nil {
		return nil, nil, errs.NewTransportSendError("characteristic discovery", err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return nil, nil, errs.NewTransportSendError("service discovery",
			fmt.Errorf("service %s not found: %v", opts.ServiceUUID, err))
	}

	wanted := []bluetooth.UUID{writeUUID}
	var notifyUUID bluetooth.UUID
	if opts.NotifyCharUUID != "" {
		notifyUUID, err = gattUUID(opts.NotifyCharUUID)
		if err != nil {
			return nil, nil, errs.NewTransportSendError("characteristic discovery", err)
		}
		wanted = append(wanted, notifyUUID)
	}

	chars, err := services[0].DiscoverCharacteristics(wanted)
	if err != nil {
		return nil, nil, errs.NewTransportSendError("characteristic discovery", err)
	}
	for i := range chars {
		c := chars[i]
		switch c.UUID() {
		case writeUUID:
			write = &c
		case notifyUUID:
			if opts.NotifyCharUUID != "" {
				notify = &c
			}
		}
	}
	if write == nil {
		return nil, nil, errs.NewTransportSendError("characteristic discovery",
			fmt.Errorf("write characteristic %s not found", opts.WriteCharUUID))
	}
	if opts.NotifyCharUUID != "" && notify == nil {
		return nil, nil, errs.NewTransportSendError("characteristic discovery",
			fmt.Errorf("notify characteristic %s not found", opts.NotifyCharUUID))
	}
	return write, notify, nil
}

// gattUUID expands a normalized 16-bit or 32-bit UUID onto the Bluetooth
// base UUID and parses the full 128-bit form.
func gattUUID(s string) (bluetooth.UUID, error) {
	switch len(s) {
	case 4:
		s = "0000" + s + "-0000-1000-8000-00805f9b34fb"
	case 8:
		s = s + "-0000-1000-8000-00805f9b34fb"
	}
	return bluetooth.ParseUUID(s)
}
