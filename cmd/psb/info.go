package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/logger"
	"github.com/samcharles93/psbkit/pkg/psb"
)

// stdout is a small seam for tests.
var stdout io.Writer = os.Stdout

// fileInfo is the --json shape of psb info.
type fileInfo struct {
	Path          string          `json:"path"`
	Size          int64           `json:"size"`
	MDF           bool            `json:"mdf"`
	Header        psb.Header      `json:"header"`
	Platform      psb.Spec        `json:"platform"`
	PixelFormat   psb.PixelFormat `json:"pixel_format"`
	Extension     string          `json:"extension,omitempty"`
	Names         int             `json:"names"`
	Strings       int             `json:"strings"`
	Resources     int             `json:"resources"`
	ResourceBytes int             `json:"resource_bytes"`
	Keys          []string        `json:"keys"`

	doc *psb.Document
}

func infoCmd() *cli.Command {
	var (
		asJSON   bool
		showTree bool
		depth    int
	)

	return &cli.Command{
		Name:      "info",
		Usage:     "Describe PSB or MDF files",
		ArgsUsage: "FILE...",
		Before:    setup,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print machine-readable JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "tree", Usage: "print an outline of the root dictionary", Destination: &showTree},
			&cli.IntFlag{Name: "depth", Usage: "outline depth (0 = no limit)", Value: 2, Destination: &depth},
			&cli.BoolFlag{Name: "verify", Usage: "reject headers with a bad checksum", Destination: &verify},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return cli.Exit("error: info needs at least one file", 2)
			}
			log := logger.FromContext(ctx)

			for i, path := range c.Args().Slice() {
				info, err := describeFile(path, psb.LoadOptions{VerifyChecksum: verify, Logger: log.Slog()})
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
				}
				if asJSON {
					b, err := gojson.MarshalIndent(info, "", "  ")
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(stdout, string(b))
					continue
				}
				if i > 0 {
					_, _ = fmt.Fprintln(stdout)
				}
				printInfo(stdout, info)
				if showTree {
					section(stdout, "Tree")
					printTree(stdout, info.doc.Objects, "", depth)
				}
			}
			return nil
		},
	}
}

func describeFile(path string, opts psb.LoadOptions) (*fileInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := psb.LoadWithOptions(data, opts)
	if err != nil {
		return nil, err
	}
	info := &fileInfo{
		Path:        path,
		Size:        int64(len(data)),
		MDF:         psb.IsMDF(data),
		Header:      doc.Header,
		Platform:    doc.Platform(),
		PixelFormat: doc.Platform().PixelFormat(),
		Extension:   doc.Extension(),
		Names:       len(doc.Names),
		Strings:     len(doc.Strings),
		Resources:   len(doc.Resources),
		Keys:        doc.Objects.Keys(),
		doc:         doc,
	}
	for _, r := range doc.Resources {
		info.ResourceBytes += len(r.Data)
	}
	return info, nil
}

func printInfo(w io.Writer, info *fileInfo) {
	h := info.Header
	container := "psb"
	if info.MDF {
		container = "mdf"
	}
	_, _ = fmt.Fprintf(w, "PSB Info: %s\n", info.Path)
	_, _ = fmt.Fprintf(w, "File: %s (%s, %s)\n", filepath.Base(info.Path), formatBytes(uint64(info.Size)), container)
	_, _ = fmt.Fprintf(w, "PSB Header: v%d header=%dB encrypt=%d\n", h.Version, h.HeaderLength, h.Encrypt)

	section(w, "Document")
	row(w, "platform", string(info.Platform))
	row(w, "pixel_format", string(info.PixelFormat))
	row(w, "extension", info.Extension)
	row(w, "names", fmt.Sprintf("%d", info.Names))
	row(w, "strings", fmt.Sprintf("%d", info.Strings))
	row(w, "resources", fmt.Sprintf("%d (%s)", info.Resources, formatBytes(uint64(info.ResourceBytes))))
	row(w, "root keys", strings.Join(info.Keys, ", "))

	section(w, "Sections")
	row(w, "names", fmt.Sprintf("0x%08x", h.OffsetNames))
	row(w, "strings", fmt.Sprintf("0x%08x", h.OffsetStrings))
	row(w, "strings data", fmt.Sprintf("0x%08x", h.OffsetStringsData))
	row(w, "chunk offsets", fmt.Sprintf("0x%08x", h.OffsetChunkOffsets))
	row(w, "chunk lengths", fmt.Sprintf("0x%08x", h.OffsetChunkLengths))
	row(w, "chunk data", fmt.Sprintf("0x%08x", h.OffsetChunkData))
	row(w, "entries", fmt.Sprintf("0x%08x", h.OffsetEntries))
	if h.Version >= 3 {
		row(w, "checksum", fmt.Sprintf("0x%08x", h.Checksum))
	}
	if h.Version >= 4 {
		row(w, "extra chunk offsets", fmt.Sprintf("0x%08x", h.OffsetExtraChunkOffsets))
		row(w, "extra chunk lengths", fmt.Sprintf("0x%08x", h.OffsetExtraChunkLengths))
		row(w, "extra chunk data", fmt.Sprintf("0x%08x", h.OffsetExtraChunkData))
	}
}

// printTree writes one line per dictionary entry or list element, down to
// depth levels (0 = unlimited).
func printTree(w io.Writer, v psb.Value, indent string, depth int) {
	switch v := v.(type) {
	case *psb.Dictionary:
		for key, child := range v.Entries() {
			_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, key, describeValue(child))
			if depth != 1 {
				printTree(w, child, indent+"  ", depth-1)
			}
		}
	case *psb.Collection:
		for i, child := range v.Values() {
			_, _ = fmt.Fprintf(w, "%s[%d]: %s\n", indent, i, describeValue(child))
			if depth != 1 {
				printTree(w, child, indent+"  ", depth-1)
			}
		}
	}
}

func describeValue(v psb.Value) string {
	switch v := v.(type) {
	case *psb.Dictionary:
		return fmt.Sprintf("dictionary (%d)", v.Len())
	case *psb.Collection:
		return fmt.Sprintf("list (%d)", v.Len())
	case *psb.Str:
		return fmt.Sprintf("%q", v.Value)
	case *psb.Resource:
		return fmt.Sprintf("resource (%s)", formatBytes(uint64(len(v.Data))))
	case psb.Array:
		return fmt.Sprintf("array (%d)", len(v))
	case psb.Number:
		return v.String()
	case psb.Bool:
		return fmt.Sprintf("%t", bool(v))
	default:
		return "null"
	}
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	_, _ = fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
