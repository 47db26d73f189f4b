package dispatch

import "github.com/gogpu/dispatch/compute"

// resolveDevice takes the first platform of the runtime and the first
// device of any type on it. The remaining platforms are released at once;
// the chosen one is owned by the run.
func (r *run) resolveDevice() (compute.Platform, compute.Device, error) {
	platforms, err := r.p.rt.Platforms()
	if err == nil && len(platforms) == 0 {
		err = compute.Errorf(compute.OpGetPlatforms, compute.StatusPlatformNotFound)
	}
	if err != nil {
		return nil, nil, r.fail(KindPlatformUnavailable, err)
	}

	plat := platforms[0]
	r.own("platform", plat)
	for _, other := range platforms[1:] {
		if err := other.Release(); err != nil {
			r.log.Warn("dispatch: release failed", "object", "platform", "err", err)
		}
	}

	devices, err := plat.Devices(compute.DeviceTypeAll)
	if err == nil && len(devices) == 0 {
		err = compute.Errorf(compute.OpGetDevices, compute.StatusDeviceNotFound)
	}
	if err != nil {
		return nil, nil, r.fail(KindDeviceUnavailable, err)
	}

	dev := devices[0]
	pi, di := plat.Info(), dev.Info()
	r.log.Info("dispatch: device selected",
		"platform", pi.Name,
		"device", di.Name,
		"type", di.Type,
		"max_work_group", di.MaxWorkGroupSize,
		"platforms", len(platforms),
		"devices", len(devices))
	return plat, dev, nil
}
