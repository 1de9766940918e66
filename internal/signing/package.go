package signing

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// PackageDMG builds and signs the disk image of the app found in paths.Work and returns its
// path.
func (p Pipeline) PackageDMG(ctx context.Context, paths Paths, cfg Config) (dmg string, err error) {
	defer decorate.OnError(&err, "could not package DMG")

	dmg = filepath.Join(paths.Output, cfg.PackagingBasename()+".dmg")
	packaging := paths.PackagingDir(cfg)

	empty := filepath.Join(paths.Work, "empty")
	if err := os.MkdirAll(empty, 0750); err != nil {
		return "", err
	}

	args := []string{
		"--verbosity", "0",
		"--tempdir", paths.Work,
		"--source", empty,
		"--target", dmg,
		"--format", "UDBZ",
		"--volname", cfg.AppProduct,
	}
	if cfg.IsChromeBranded {
		args = append(args, "--icon", filepath.Join(packaging, dmgResource(cfg, "chrome", "dmg_icon.icns")))
	}
	args = append(args,
		"--copy", fmt.Sprintf("%s:/", filepath.Join(paths.Work, cfg.AppDir())),
		"--symlink", "/Applications:/ ",
	)
	if cfg.IsChromeBranded {
		args = append(args,
			"--copy", fmt.Sprintf("%s:/.keystone_install", filepath.Join(packaging, "keystone_install.sh")),
			"--mkdir", "/.background",
			"--copy", fmt.Sprintf("%s:/.background/background.png", filepath.Join(packaging, "chrome_dmg_background.png")),
			"--copy", fmt.Sprintf("%s:/.DS_Store", filepath.Join(packaging, dmgResource(cfg, "chrome", "dmg_dsstore"))),
		)
	}
	if cfg.Dist.InflationKilobytes > 0 {
		args = append(args, "--copy", fmt.Sprintf("%s:/.background/", filepath.Join(packaging, inflationFile)))
	}

	if _, err := p.runner.Run(ctx, cmdutils.Command{Name: filepath.Join(packaging, "pkg-dmg"), Args: args}); err != nil {
		return "", err
	}

	id := strings.ReplaceAll(cfg.AppProduct, " ", "") + "-" + cfg.Version
	if cfg.Dist.BrandCode != "" {
		id += "-" + cfg.Dist.BrandCode
	}
	part := CodeSignedProduct{Path: dmg, Identifier: id}
	// The DMG lives outside of the work directory.
	dmgPaths := paths.ReplaceWork("")
	if err := p.SignPart(ctx, dmgPaths, cfg, part); err != nil {
		return "", err
	}
	if err := p.VerifyPart(ctx, dmgPaths, part); err != nil {
		return "", err
	}
	return dmg, nil
}

// dmgResource returns the name of a channel specific DMG resource, falling back to the
// stable one.
func dmgResource(cfg Config, prefix, suffix string) string {
	if cfg.Dist.ChannelCustomize && cfg.Dist.Channel != "" {
		return fmt.Sprintf("%s_%s_%s", prefix, cfg.Dist.Channel, suffix)
	}
	return prefix + "_" + suffix
}

// PackageZIP zips the app found in paths.Work into paths.Output.
func (p Pipeline) PackageZIP(ctx context.Context, paths Paths, cfg Config) (zip string, err error) {
	defer decorate.OnError(&err, "could not package ZIP")

	zip = filepath.Join(paths.Output, cfg.PackagingBasename()+".zip")
	entries := []string{cfg.AppDir()}
	if cfg.IsChromeBranded {
		if err := fileutils.CopyFile(filepath.Join(paths.PackagingDir(cfg), "keystone_install.sh"), filepath.Join(paths.Work, ".keystone_install")); err != nil {
			return "", err
		}
		entries = append(entries, ".keystone_install")
	}

	args := append([]string{"-9", "--recurse-paths", "--symlinks", "--quiet", zip}, entries...)
	if _, err := p.runner.Run(ctx, cmdutils.Command{Name: "zip", Args: args, Dir: paths.Work}); err != nil {
		return "", err
	}
	return zip, nil
}

// PackagePKG builds the installer package of the app found in paths.Work and signs it with
// the installer identity.
func (p Pipeline) PackagePKG(ctx context.Context, paths Paths, cfg Config) (pkg string, err error) {
	defer decorate.OnError(&err, "could not package PKG")

	pkg = filepath.Join(paths.Output, cfg.PackagingBasename()+".pkg")

	work, err := p.mkdtemp("pkg")
	if err != nil {
		return "", err
	}
	defer p.removeAll(work)
	pkgPaths := paths.ReplaceWork(work)

	payload := filepath.Join(work, "payload")
	if err := fileutils.CopyTree(filepath.Join(paths.Work, cfg.AppDir()), filepath.Join(payload, cfg.AppDir())); err != nil {
		return "", err
	}

	componentPlist, err := writeComponentPlist(pkgPaths, cfg)
	if err != nil {
		return "", err
	}
	scripts, err := createPkgbuildScripts(pkgPaths, cfg)
	if err != nil {
		return "", err
	}

	componentPkg := filepath.Join(work, cfg.AppProduct+".pkg")
	args := []string{
		"--root", payload,
		"--component-plist", componentPlist,
		"--identifier", cfg.BaseBundleID,
		"--version", cfg.Version,
		"--install-location", "/Applications",
		"--scripts", scripts,
	}
	major, err := p.macOSMajorVersion(ctx)
	if err != nil {
		return "", err
	}
	if major >= 12 {
		minOS, err := minimumOSVersion(payload, cfg)
		if err != nil {
			return "", err
		}
		args = append(args, "--compression", "latest", "--min-os-version", minOS)
	}
	args = append(args, componentPkg)
	if _, err := p.runner.Run(ctx, cmdutils.Command{Name: "pkgbuild", Args: args}); err != nil {
		return "", err
	}

	dist, err := p.writeProductbuildDistribution(ctx, pkgPaths, payload, cfg, componentPkg)
	if err != nil {
		return "", err
	}
	args = []string{
		"--identifier", cfg.BaseBundleID,
		"--version", cfg.Version,
		"--distribution", dist,
		"--package-path", work,
	}
	if cfg.Notarize.ShouldNotarize() {
		args = append(args, "--timestamp")
	}
	args = append(args, "--sign", cfg.InstallerIdentity, pkg)
	if _, err := p.runner.Run(ctx, cmdutils.Command{Name: "productbuild", Args: args}); err != nil {
		return "", err
	}
	return pkg, nil
}

// createPkgbuildScripts writes the postinstall script of the package and returns the
// scripts directory.
func createPkgbuildScripts(paths Paths, cfg Config) (string, error) {
	scripts := filepath.Join(paths.Work, "scripts")
	if err := os.MkdirAll(scripts, 0750); err != nil {
		return "", err
	}

	tmpl, err := os.ReadFile(filepath.Join(paths.PackagingDir(cfg), "pkg_postinstall.in"))
	if err != nil {
		return "", err
	}
	postinstall := strings.NewReplacer(
		"@APP_DIR@", cfg.AppDir(),
		"@APP_PRODUCT@", cfg.AppProduct,
		"@BRAND_CODE@", cfg.Dist.BrandCode,
		"@FRAMEWORK_DIR@", filepath.Join(cfg.AppDir(), cfg.FrameworkDir()),
	).Replace(string(tmpl))

	path := filepath.Join(scripts, "postinstall")
	if err := os.WriteFile(path, []byte(postinstall), 0700); err != nil {
		return "", err
	}
	return scripts, nil
}

type componentProperties struct {
	BundleOverwriteAction     string `plist:"BundleOverwriteAction"`
	BundleIsVersionChecked    bool   `plist:"BundleIsVersionChecked"`
	BundleHasStrictIdentifier bool   `plist:"BundleHasStrictIdentifier"`
	RootRelativeBundlePath    string `plist:"RootRelativeBundlePath"`
	BundleIsRelocatable       bool   `plist:"BundleIsRelocatable"`
}

// writeComponentPlist writes the component property list forcing the app to be
// installed in place.
func writeComponentPlist(paths Paths, cfg Config) (string, error) {
	path := filepath.Join(paths.Work, cfg.AppProduct+".plist")
	props := []componentProperties{{
		BundleOverwriteAction:     "upgrade",
		BundleIsVersionChecked:    true,
		BundleHasStrictIdentifier: true,
		RootRelativeBundlePath:    cfg.AppDir(),
		BundleIsRelocatable:       false,
	}}
	return path, writePlist(path, props)
}

type installerScript struct {
	XMLName        xml.Name       `xml:"installer-gui-script"`
	MinSpecVersion string         `xml:"minSpecVersion,attr"`
	Title          string         `xml:"title"`
	Options        installerOpts  `xml:"options"`
	Domains        installerDoms  `xml:"domains"`
	VolumeCheck    volumeCheck    `xml:"volume-check"`
	ChoicesOutline choicesOutline `xml:"choices-outline"`
	Choices        []choice       `xml:"choice"`
	PkgRef         pkgRef         `xml:"pkg-ref"`
}

type installerOpts struct {
	Customize         string `xml:"customize,attr"`
	RequireScripts    bool   `xml:"require-scripts,attr"`
	HostArchitectures string `xml:"hostArchitectures,attr"`
}

type installerDoms struct {
	EnableAnywhere        bool `xml:"enable_anywhere,attr"`
	EnableCurrentUserHome bool `xml:"enable_currentUserHome,attr"`
	EnableLocalSystem     bool `xml:"enable_localSystem,attr"`
}

type volumeCheck struct {
	OSVersions []osVersion `xml:"allowed-os-versions>os-version"`
}

type osVersion struct {
	Min string `xml:"min,attr"`
}

type choicesOutline struct {
	Line outlineLine `xml:"line"`
}

type outlineLine struct {
	Choice string        `xml:"choice,attr"`
	Lines  []outlineLine `xml:"line,omitempty"`
}

type choice struct {
	ID      string  `xml:"id,attr"`
	Visible string  `xml:"visible,attr,omitempty"`
	Title   string  `xml:"title,attr,omitempty"`
	PkgRef  *pkgRef `xml:"pkg-ref,omitempty"`
}

type pkgRef struct {
	ID           string `xml:"id,attr"`
	Version      string `xml:"version,attr,omitempty"`
	OnConclusion string `xml:"onConclusion,attr,omitempty"`
	Path         string `xml:",chardata"`
}

// writeProductbuildDistribution writes the distribution file wrapping the component
// package into a product archive restricted to the supported OS and architectures.
func (p Pipeline) writeProductbuildDistribution(ctx context.Context, paths Paths, payload string, cfg Config, componentPkg string) (string, error) {
	minOS, err := minimumOSVersion(payload, cfg)
	if err != nil {
		return "", err
	}
	archs, err := p.hostArchitectures(ctx, payload, cfg)
	if err != nil {
		return "", err
	}

	id := cfg.BaseBundleID
	script := installerScript{
		MinSpecVersion: "2",
		Title:          cfg.AppProduct,
		Options:        installerOpts{Customize: "never", HostArchitectures: strings.Join(archs, ",")},
		Domains:        installerDoms{EnableLocalSystem: true},
		VolumeCheck:    volumeCheck{OSVersions: []osVersion{{Min: minOS}}},
		ChoicesOutline: choicesOutline{Line: outlineLine{Choice: "default", Lines: []outlineLine{{Choice: id}}}},
		Choices: []choice{
			{ID: "default"},
			{ID: id, Visible: "false", Title: cfg.AppProduct, PkgRef: &pkgRef{ID: id}},
		},
		PkgRef: pkgRef{ID: id, Version: cfg.Version, OnConclusion: "none", Path: url.PathEscape(filepath.Base(componentPkg))},
	}

	data, err := xml.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(paths.Work, cfg.AppProduct+".dist")
	return path, os.WriteFile(path, append([]byte(xml.Header), data...), 0600)
}

// minimumOSVersion is the LSMinimumSystemVersion of the app found in dir.
func minimumOSVersion(dir string, cfg Config) (string, error) {
	info, err := readPlist(filepath.Join(dir, cfg.AppDir(), "Contents", "Info.plist"))
	if err != nil {
		return "", err
	}
	v, ok := info["LSMinimumSystemVersion"].(string)
	if !ok {
		return "", fmt.Errorf("%s does not declare LSMinimumSystemVersion", cfg.AppDir())
	}
	return v, nil
}

// hostArchitectures lists the architectures of the main executable of the app.
func (p Pipeline) hostArchitectures(ctx context.Context, dir string, cfg Config) ([]string, error) {
	exe := filepath.Join(dir, cfg.AppDir(), "Contents", "MacOS", cfg.AppProduct)
	res, err := p.runner.Run(ctx, cmdutils.Command{Name: "lipo", Args: []string{"-archs", exe}})
	if err != nil {
		return nil, err
	}
	archs := strings.FieldsFunc(res.Stdout.String(), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(archs) == 0 {
		return nil, fmt.Errorf("no architecture found in %s", exe)
	}
	return archs, nil
}

func (p Pipeline) macOSMajorVersion(ctx context.Context) (int, error) {
	res, err := p.runner.Run(ctx, cmdutils.Command{Name: "sw_vers", Args: []string{"-productVersion"}})
	if err != nil {
		return 0, err
	}
	v := strings.TrimSpace(res.Stdout.String())
	major, err := strconv.Atoi(strings.Split(v, ".")[0])
	if err != nil {
		return 0, fmt.Errorf("unexpected macOS version %q: %v", v, err)
	}
	return major, nil
}

// installerTools are copied from the packaging directory into the diff tools archive.
// The first ones are binaries and get signed.
var installerTools = []string{
	"goobspatch",
	"liblzma_decompress.dylib",
	"goobsdiff",
	"xz",
	"xzdec",
	"dirdiffer.sh",
	"dirpatcher.sh",
	"dmgdiffer.sh",
	"pkg-dmg",
}

const signedInstallerTools = 5

// packageInstallerTools archives the tools used to build and apply binary diff updates.
func (p Pipeline) packageInstallerTools(ctx context.Context, paths Paths, cfg Config) (err error) {
	defer decorate.OnError(&err, "could not package installer tools")

	work, err := p.mkdtemp("diff-tools")
	if err != nil {
		return err
	}
	defer p.removeAll(work)

	tools := filepath.Join(work, "diff_tools")
	if err := os.MkdirAll(tools, 0750); err != nil {
		return err
	}

	names := installerTools
	if cfg.IsChromeBranded {
		names = append(names[:len(names):len(names)], "keystone_install.sh")
	}
	for _, n := range names {
		if err := fileutils.CopyFile(filepath.Join(paths.PackagingDir(cfg), n), filepath.Join(tools, n)); err != nil {
			return err
		}
	}

	toolPaths := paths.ReplaceWork(tools)
	for _, n := range installerTools[:signedInstallerTools] {
		part := CodeSignedProduct{
			Path:       n,
			Identifier: strings.TrimSuffix(n, ".dylib"),
			Options:    []string{"restrict", "library", "runtime", "kill"},
		}
		if err := p.SignPart(ctx, toolPaths, cfg, part); err != nil {
			return err
		}
		if err := p.VerifyPart(ctx, toolPaths, part); err != nil {
			return err
		}
	}

	_, err = p.runner.Run(ctx, cmdutils.Command{
		Name: "zip",
		Args: []string{"-9ry", filepath.Join(paths.Output, "diff_tools.zip"), "diff_tools"},
		Dir:  work,
	})
	return err
}
