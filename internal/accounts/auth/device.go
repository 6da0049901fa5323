// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/dberr"
	"github.com/taibuivan/veyra/pkg/uuid"
)

// # Device Resolution

// DeviceResolver maps a client-supplied device description to a stable
// device record, creating one on first contact.
type DeviceResolver struct {
	devices DeviceRepository
}

// NewDeviceResolver creates a resolver backed by the given repository.
func NewDeviceResolver(devices DeviceRepository) *DeviceResolver {
	return &DeviceResolver{devices: devices}
}

/*
Resolve returns the device for the given client description.

Description: Find-or-create keyed by the opaque identifier. Two logins
presenting an unseen identifier at the same moment both miss the lookup and
both attempt the insert; the unique index lets exactly one insert through,
and the loser re-fetches the winner's row. Either way both callers end up
holding the same device. Existing devices get their metadata and last-seen
time refreshed.

Parameters:
  - ctx: context.Context
  - input: DeviceInput (identifier required)

Returns:
  - *Device: The stable device record
  - error: apperr.Validation when the identifier is empty, or persistence failures
*/
func (resolver *DeviceResolver) Resolve(ctx context.Context, input DeviceInput) (*Device, error) {
	if input.Identifier == "" {
		return nil, apperr.ValidationError("Invalid device description",
			apperr.FieldError{Field: FieldDeviceID, Message: "Device identifier is required"})
	}

	now := time.Now()

	device, err := resolver.devices.FindByIdentifier(ctx, input.Identifier)
	if err == nil {
		if touchErr := resolver.devices.Touch(ctx, device.ID, input, now); touchErr != nil {
			return nil, touchErr
		}
		device.Fingerprint = input.Fingerprint
		device.Platform = input.Platform
		device.Model = input.Model
		device.LastSeenAt = now
		return device, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	device = &Device{
		ID:          uuid.New(),
		Identifier:  input.Identifier,
		Fingerprint: input.Fingerprint,
		Platform:    input.Platform,
		Model:       input.Model,
		Trusted:     false,
		LastSeenAt:  now,
		CreatedAt:   now,
	}

	if err := resolver.devices.Create(ctx, device); err != nil {
		// Lost the insert race: the identifier now exists, fetch it.
		if dberr.IsUniqueViolation(err) {
			return resolver.devices.FindByIdentifier(ctx, input.Identifier)
		}
		return nil, err
	}

	return device, nil
}
