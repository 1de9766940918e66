package signing

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// NotarizeLevel tells how far the notarization of signed artifacts goes.
type NotarizeLevel int

const (
	// NotarizeNone skips notarization entirely.
	NotarizeNone NotarizeLevel = iota
	// NotarizeNoWait submits artifacts without waiting for the verdict.
	NotarizeNoWait
	// NotarizeWaitNoStaple waits for the verdict but does not staple tickets.
	NotarizeWaitNoStaple
	// NotarizeStaple waits for the verdict and staples the tickets.
	NotarizeStaple
)

var notarizeLevelNames = map[NotarizeLevel]string{
	NotarizeNone:         "none",
	NotarizeNoWait:       "nowait",
	NotarizeWaitNoStaple: "wait-nostaple",
	NotarizeStaple:       "staple",
}

func (l NotarizeLevel) String() string {
	if s, ok := notarizeLevelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("NotarizeLevel(%d)", int(l))
}

// ParseNotarizeLevel returns the level named s.
func ParseNotarizeLevel(s string) (NotarizeLevel, error) {
	for l, name := range notarizeLevelNames {
		if name == s {
			return l, nil
		}
	}
	return NotarizeNone, fmt.Errorf("unknown notarization level %q", s)
}

// ShouldNotarize reports whether artifacts are submitted.
func (l NotarizeLevel) ShouldNotarize() bool { return l > NotarizeNone }

// ShouldWait reports whether the verdict is awaited.
func (l NotarizeLevel) ShouldWait() bool { return l > NotarizeNoWait }

// ShouldStaple reports whether tickets are stapled.
func (l NotarizeLevel) ShouldStaple() bool { return l > NotarizeWaitNoStaple }

// Distribution describes one flavor of the product to sign and package.
type Distribution struct {
	// Channel is empty for the stable channel.
	Channel   string `mapstructure:"channel" yaml:"channel"`
	BrandCode string `mapstructure:"brand_code" yaml:"brand_code"`
	// AppNameFragment is appended to the product name of a customized channel.
	AppNameFragment string `mapstructure:"app_name_fragment" yaml:"app_name_fragment"`
	// PackagingNameFragment is appended to the names of the produced packages.
	PackagingNameFragment string `mapstructure:"packaging_name_fragment" yaml:"packaging_name_fragment"`
	ProductDirname        string `mapstructure:"product_dirname" yaml:"product_dirname"`
	CreatorCode           string `mapstructure:"creator_code" yaml:"creator_code"`
	// ChannelCustomize gives the channel its own bundle identifier and name so that it can be
	// installed side by side with other channels.
	ChannelCustomize bool `mapstructure:"channel_customize" yaml:"channel_customize"`

	PackageAsDMG bool `mapstructure:"package_as_dmg" yaml:"package_as_dmg"`
	PackageAsPKG bool `mapstructure:"package_as_pkg" yaml:"package_as_pkg"`
	PackageAsZIP bool `mapstructure:"package_as_zip" yaml:"package_as_zip"`

	// InflationKilobytes pads the DMG with random data.
	InflationKilobytes int `mapstructure:"inflation_kilobytes" yaml:"inflation_kilobytes"`
}

// DefaultDistribution is the unbranded stable distribution packaged as a DMG.
func DefaultDistribution() Distribution {
	return Distribution{PackageAsDMG: true}
}

// BrandInBundle reports whether the brand code is written to the app bundle.
// A distribution shipped only as a PKG receives its brand from the postinstall script.
func (d Distribution) BrandInBundle() bool {
	return d.BrandCode != "" && !(d.PackageAsPKG && !d.PackageAsDMG)
}

// WorkDirName is the directory name of the signed app of the distribution. Distributions
// producing identical app bundles share the same name.
func (d Distribution) WorkDirName() string {
	return d.sharedWorkKey()
}

func (d Distribution) sharedWorkKey() string {
	parts := []string{d.channelName()}
	if d.ChannelCustomize {
		parts = append(parts, d.AppNameFragment, d.ProductDirname, d.CreatorCode)
	}
	if d.BrandInBundle() {
		parts = append(parts, d.BrandCode)
	}
	if d.InflationKilobytes > 0 {
		parts = append(parts, strconv.Itoa(d.InflationKilobytes))
	}

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}

func (d Distribution) channelName() string {
	if d.Channel == "" {
		return "stable"
	}
	return d.Channel
}

// ToConfig returns base adjusted for d. Customized channels get their own product name and
// bundle identifier.
func (d Distribution) ToConfig(base Config) Config {
	c := base
	c.Distributions = nil
	c.Dist = d
	if d.ChannelCustomize {
		if d.AppNameFragment != "" {
			c.AppProduct = base.AppProduct + " " + d.AppNameFragment
		}
		if d.Channel != "" {
			c.BaseBundleID = base.BaseBundleID + "." + d.Channel
		}
	}
	return c
}

// Config holds the signing identities and the product naming.
type Config struct {
	Identity          string `mapstructure:"identity"`
	InstallerIdentity string `mapstructure:"installer_identity"`

	NotaryUser     string `mapstructure:"notary_user"`
	NotaryPassword string `mapstructure:"notary_password"`
	NotaryTeamID   string `mapstructure:"notary_team_id"`

	AppProduct   string `mapstructure:"app_product"`
	Product      string `mapstructure:"product"`
	Version      string `mapstructure:"version"`
	BaseBundleID string `mapstructure:"base_bundle_id"`

	// ProvisioningProfile, when set, is embedded in the app bundle before signing.
	ProvisioningProfile string `mapstructure:"provisioning_profile"`
	IsChromeBranded     bool   `mapstructure:"is_chrome_branded"`

	Notarize      NotarizeLevel  `mapstructure:"-"`
	Distributions []Distribution `mapstructure:"-"`

	// Dist is the distribution a config returned by Distribution.ToConfig was built for.
	Dist Distribution `mapstructure:"-"`
}

// AppDir is the name of the app bundle.
func (c Config) AppDir() string {
	return c.AppProduct + ".app"
}

// FrameworkDir is the path of the framework relative to the app bundle.
func (c Config) FrameworkDir() string {
	return filepath.Join("Contents", "Frameworks", c.Product+" Framework.framework")
}

// HelperApps are the helper bundle names, in stapling order.
func (c Config) HelperApps() []string {
	helper := c.Product + " Helper"
	return []string{
		helper + ".app",
		helper + " (Renderer).app",
		helper + " (Plugin).app",
		helper + " (GPU).app",
		helper + " (Alerts).app",
	}
}

// PackagingBasename is the file name, without extension, of the produced packages.
func (c Config) PackagingBasename() string {
	name := strings.ReplaceAll(c.AppProduct, " ", "") + "-" + c.Version
	if c.Dist.PackagingNameFragment != "" {
		name += "-" + c.Dist.PackagingNameFragment
	}
	return name
}

// Paths are the directories a pipeline step reads from and writes to.
type Paths struct {
	Input  string
	Output string
	Work   string
}

// ReplaceWork returns a copy of p using work as the work directory.
func (p Paths) ReplaceWork(work string) Paths {
	p.Work = work
	return p
}

// PackagingDir is the input directory holding the packaging resources.
func (p Paths) PackagingDir(c Config) string {
	return filepath.Join(p.Input, c.Product+" Packaging")
}

// CodeSignedProduct is a bundle or binary to sign.
type CodeSignedProduct struct {
	// Path is relative to the work directory.
	Path       string
	Identifier string
	// Options are passed to codesign --options.
	Options []string
	// RequirementsStr is a designated requirement, passed to codesign --requirements.
	RequirementsStr string
	// Entitlements is a file name in the packaging directory.
	Entitlements string
	// VerifyDeep verifies nested code too.
	VerifyDeep bool
}
