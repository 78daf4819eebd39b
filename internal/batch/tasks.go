package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/psbkit/internal/convert"
	"github.com/samcharles93/psbkit/internal/logger"
	"github.com/samcharles93/psbkit/pkg/psb"
)

// Text formats a document can be decompiled to.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// ManifestSuffix names the manifest written next to a decompiled tree.
const ManifestSuffix = ".resx.json"

// DecompileOptions controls Decompile.
type DecompileOptions struct {
	Format    string
	Resources convert.ResourceMode
	// OutDir overrides the directory outputs are written to. Empty uses
	// the input's directory.
	OutDir string
	// VerifyChecksum rejects headers whose checksum does not match.
	VerifyChecksum bool
}

// Decompile converts the PSB or MDF at in to a text tree, a manifest and,
// for external resources, a directory of resource files. It returns the
// path of the tree.
func Decompile(ctx context.Context, in string, opts DecompileOptions) (string, error) {
	log := logger.FromContext(ctx)
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	doc, err := psb.Open(in, psb.LoadOptions{VerifyChecksum: opts.VerifyChecksum, Logger: log.Slog()})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", in, err)
	}

	base := outputBase(in, opts.OutDir)
	resDir := filepath.Base(base)
	exp := convert.ExportOptions{
		Resources: opts.Resources,
		Store:     convert.DirStore(base),
		Indent:    "  ",
	}
	if exp.Resources == "" {
		exp.Resources = convert.ResourceExternal
	}

	out := base + "." + format
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		err = convert.ExportJSON(&buf, doc, exp)
	case FormatYAML:
		err = convert.ExportYAML(&buf, doc, exp)
	case FormatCBOR:
		err = convert.ExportCBOR(&buf, doc, exp)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("export %s: %w", in, err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", err
	}

	if exp.Resources == convert.ResourceInline {
		resDir = ""
	}
	m := convert.NewManifest(doc, format, exp.Resources, resDir)
	if err := convert.WriteManifest(base+ManifestSuffix, m); err != nil {
		return "", err
	}
	log.Debug("decompiled", "in", in, "out", out, "names", len(doc.Names), "strings", len(doc.Strings), "resources", len(doc.Resources))
	return out, nil
}

// CompileOptions controls Compile.
type CompileOptions struct {
	// Version overrides the manifest's header version when non-zero.
	Version uint16
	// MDF wraps the output in an MDF container.
	MDF      bool
	MDFLevel int
	// DedupResources shares one table entry between equal resources.
	DedupResources bool
	OutDir         string
}

// Compile builds a PSB from a JSON or YAML tree written by Decompile. The
// manifest next to the tree is optional. It returns the output path.
func Compile(ctx context.Context, in string, opts CompileOptions) (string, error) {
	log := logger.FromContext(ctx)
	ext := strings.ToLower(filepath.Ext(in))
	stem := strings.TrimSuffix(in, filepath.Ext(in))

	m := convert.Manifest{Version: psb.DefaultVersion, Resources: convert.ResourceExternal, ResourceDir: filepath.Base(stem)}
	if found, err := convert.ReadManifest(stem + ManifestSuffix); err == nil {
		m = found
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	imp := convert.ImportOptions{
		Version:        m.Version,
		DedupResources: opts.DedupResources,
	}
	if opts.Version != 0 {
		imp.Version = opts.Version
	}
	if m.ResourceDir != "" {
		imp.Store = convert.DirStore(filepath.Join(filepath.Dir(in), m.ResourceDir))
	}

	f, err := os.Open(in)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var doc *psb.Document
	switch ext {
	case ".json":
		doc, err = convert.ImportJSON(f, imp)
	case ".yaml", ".yml":
		doc, err = convert.ImportYAML(f, imp)
	default:
		return "", fmt.Errorf("cannot compile %s: want .json or .yaml", in)
	}
	if err != nil {
		return "", fmt.Errorf("import %s: %w", in, err)
	}

	outExt := ".psb"
	if e := doc.Extension(); e != "" && e != ".json" && e != ".yaml" {
		outExt = e
	}
	out := outputBase(in, opts.OutDir) + outExt
	if err := doc.Save(out, psb.SaveOptions{MDF: opts.MDF, MDFLevel: opts.MDFLevel}); err != nil {
		return "", fmt.Errorf("build %s: %w", in, err)
	}
	log.Debug("compiled", "in", in, "out", out, "version", doc.Header.Version, "mdf", opts.MDF)
	return out, nil
}

// Pack wraps the PSB at in as <in>.mdf.
func Pack(ctx context.Context, in string, level int) (string, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	if psb.IsMDF(data) {
		return "", fmt.Errorf("%s is already mdf", in)
	}
	if _, err := psb.Load(data); err != nil {
		return "", fmt.Errorf("decode %s: %w", in, err)
	}
	out, err := psb.CompressMDF(data, level)
	if err != nil {
		return "", err
	}
	path := in + ".mdf"
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", err
	}
	logger.FromContext(ctx).Debug("packed", "in", in, "out", path, "ratio", ratio(len(out), len(data)))
	return path, nil
}

// Unpack writes the PSB held in the MDF at in next to it.
func Unpack(ctx context.Context, in string) (string, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	raw, err := psb.DecompressMDF(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", in, err)
	}
	path := strings.TrimSuffix(in, ".mdf")
	if path == in {
		path = in + ".psb"
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	logger.FromContext(ctx).Debug("unpacked", "in", in, "out", path, "size", len(raw))
	return path, nil
}

// outputBase strips the extension of in and moves it to dir if set.
func outputBase(in, dir string) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	if dir != "" {
		base = filepath.Join(dir, filepath.Base(base))
	}
	return base
}

func ratio(a, b int) string {
	if b == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", float64(a)/float64(b))
}
