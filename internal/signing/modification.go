package signing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// CustomizeDistribution rewrites the app bundle found in the work directory for the
// distribution of cfg. Customized channels get their bundle renamed and their identifiers
// suffixed with the channel.
func CustomizeDistribution(paths Paths, base, cfg Config) (err error) {
	defer decorate.OnError(&err, "could not customize distribution %s", cfg.Dist.WorkDirName())

	d := cfg.Dist
	app := filepath.Join(paths.Work, base.AppDir())

	infoPath := filepath.Join(app, "Contents", "Info.plist")
	info, err := readPlist(infoPath)
	if err != nil {
		return err
	}

	delete(info, "KSBrandID")
	if d.BrandInBundle() {
		info["KSBrandID"] = d.BrandCode
	}
	if d.Channel != "" {
		info["KSChannelID"] = d.Channel
	}

	if d.ChannelCustomize {
		info["CFBundleIdentifier"] = cfg.BaseBundleID
		info["CFBundleName"] = cfg.AppProduct
		info["CFBundleDisplayName"] = cfg.AppProduct
		if d.CreatorCode != "" {
			info["CFBundleSignature"] = d.CreatorCode
		}
		if d.ProductDirname != "" {
			info["CrProductDirName"] = d.ProductDirname
		}
	}
	if err := writePlist(infoPath, info); err != nil {
		return err
	}

	if d.ChannelCustomize {
		fwInfoPath := filepath.Join(app, base.FrameworkDir(), "Resources", "Info.plist")
		fwInfo, err := readPlist(fwInfoPath)
		if err != nil {
			return err
		}
		fwInfo["CFBundleIdentifier"] = cfg.BaseBundleID + ".framework"
		if err := writePlist(fwInfoPath, fwInfo); err != nil {
			return err
		}
	}

	if cfg.ProvisioningProfile != "" {
		if err := fileutils.CopyFile(cfg.ProvisioningProfile, filepath.Join(app, "Contents", "embedded.provisionprofile")); err != nil {
			return fmt.Errorf("could not embed provisioning profile: %v", err)
		}
	}

	if base.AppDir() != cfg.AppDir() {
		return os.Rename(app, filepath.Join(paths.Work, cfg.AppDir()))
	}
	return nil
}

// frameworkBundleID returns the identifier of the framework of the app in dir.
func frameworkBundleID(dir string, cfg Config) (string, error) {
	info, err := readPlist(filepath.Join(dir, cfg.AppDir(), cfg.FrameworkDir(), "Resources", "Info.plist"))
	if err != nil {
		return "", err
	}
	id, ok := info["CFBundleIdentifier"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("framework of %s has no bundle identifier", cfg.AppDir())
	}
	return id, nil
}
