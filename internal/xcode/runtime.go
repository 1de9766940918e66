package xcode

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ubuntu/decorate"
)

type simRuntime struct {
	Build      string `json:"build"`
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	State      string `json:"state"`
}

// IsRuntimeBuildInstalled reports whether the simulator registry knows the runtime build.
func (i Installer) IsRuntimeBuildInstalled(ctx context.Context, build string) (bool, error) {
	out, err := i.run(ctx, "xcrun", "simctl", "runtime", "list", "-j")
	if err != nil {
		return false, fmt.Errorf("could not list simulator runtimes: %w", err)
	}

	var runtimes map[string]simRuntime
	if err := json.Unmarshal([]byte(out), &runtimes); err != nil {
		return false, fmt.Errorf("could not parse simulator runtimes: %v", err)
	}
	for _, r := range runtimes {
		if strings.EqualFold(r.Build, build) {
			return true, nil
		}
	}
	return false, nil
}

// SetDefaultRuntime makes build the runtime used for iosVersion simulators.
func (i Installer) SetDefaultRuntime(ctx context.Context, build, iosVersion string) error {
	if _, err := i.run(ctx, "xcrun", "simctl", "runtime", "match", "set", "iphoneos"+iosVersion, strings.ToLower(build)); err != nil {
		return fmt.Errorf("could not set default runtime for iOS %s: %w", iosVersion, err)
	}
	return nil
}

// InstallRuntimeDMG downloads the runtime disk image of build into runtimeCache and
// registers it, unless the registry already has it. The runtime becomes the default
// for iosVersion either way.
func (i Installer) InstallRuntimeDMG(ctx context.Context, build, iosVersion, runtimeCache string) (err error) {
	defer decorate.OnError(&err, "could not install runtime %s", build)

	installed, err := i.IsRuntimeBuildInstalled(ctx, build)
	if err != nil {
		return err
	}
	if installed {
		i.log.Info("Runtime already installed", "build", build)
		return i.SetDefaultRuntime(ctx, build, iosVersion)
	}

	if _, err := i.run(ctx, i.macToolchain, "install-runtime-dmg",
		"-runtime-version", runtimeVersion(iosVersion),
		"-runtime-build", strings.ToLower(build),
		"-output-dir", runtimeCache); err != nil {
		return err
	}

	images, err := filepath.Glob(filepath.Join(runtimeCache, "*.dmg"))
	if err != nil {
		return err
	}
	if len(images) != 1 {
		return fmt.Errorf("expected exactly one disk image in %s, found %d", runtimeCache, len(images))
	}
	if _, err := i.run(ctx, "xcrun", "simctl", "runtime", "add", images[0]); err != nil {
		return err
	}
	return i.SetDefaultRuntime(ctx, build, iosVersion)
}
