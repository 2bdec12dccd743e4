// Command fragdump inspects a fragment directory: its bookkeeping
// summary, and optionally the cells a query range resolves to for one
// attribute, dumped as hex.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/arrayfs/fragread/fragment"
	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/readstate"
	"github.com/arrayfs/fragread/internal/schema"
)

func main() {
	var (
		dims         int
		domainFlag   string
		coordType    string
		cellOrder    string
		dense        bool
		tileExtent   string
		tileCapacity uint64
		attrFlags    []string
		varAttrFlags []string
		rangeFlag    string
		attrName     string
		bufferSize   int
		mapped       bool
		schemaFile   string
	)

	pflag.IntVar(&dims, "dims", 1, "number of dimensions")
	pflag.StringVar(&domainFlag, "domain", "", "semicolon-separated lo,hi pairs, one per dimension")
	pflag.StringVar(&coordType, "coord-type", "int64", "int32|int64|float32|float64")
	pflag.StringVar(&cellOrder, "cell-order", "row", "row|col|hilbert")
	pflag.BoolVar(&dense, "dense", false, "fragment is dense")
	pflag.StringVar(&tileExtent, "tile-extent", "", "comma-separated per-dimension tile extent (dense only)")
	pflag.Uint64Var(&tileCapacity, "tile-capacity", 0, "cells per tile")
	pflag.StringArrayVar(&attrFlags, "attr", nil, "name:cellsize:compression (compression = none|gzip|lz4), repeatable")
	pflag.StringArrayVar(&varAttrFlags, "var-attr", nil, "name:compression, repeatable")
	pflag.StringVar(&rangeFlag, "range", "", "comma-separated lo,hi,lo,hi,... query range")
	pflag.StringVar(&attrName, "dump-attr", "", "if set, dump this attribute's matching cells as hex")
	pflag.IntVar(&bufferSize, "buffer-size", 1<<20, "bytes per output buffer when dumping")
	pflag.BoolVar(&mapped, "mapped", false, "use the memory-mapped I/O backend")
	pflag.StringVar(&schemaFile, "schema-file", "", "load the schema from a YAML description instead of --dims/--domain/...")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fragdump [flags] <fragment-dir>")
		os.Exit(1)
	}
	dir := pflag.Arg(0)

	var sch *schema.Schema
	var err error
	if schemaFile != "" {
		sch, err = schema.LoadYAML(schemaFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fragdump: loading --schema-file: %v\n", err)
			os.Exit(1)
		}
	} else {
		sch, err = buildSchema(dims, domainFlag, coordType, cellOrder, dense, tileExtent, tileCapacity, attrFlags, varAttrFlags)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fragdump: building schema: %v\n", err)
			os.Exit(1)
		}
	}

	var opts []fragment.Option
	if mapped {
		opts = append(opts, fragment.WithMappedIO())
	}

	f, err := fragment.Open(dir, sch, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fragdump: opening %s: %v\n", dir, err)
		os.Exit(1)
	}

	printSummary(dir, sch)

	if rangeFlag == "" {
		return
	}
	queryRange, err := parseFloats(rangeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fragdump: parsing --range: %v\n", err)
		os.Exit(1)
	}

	attrs := []string{readstate.CoordsAttrName}
	if attrName != "" {
		attrs = []string{attrName, readstate.CoordsAttrName}
	}

	rs, err := f.NewReadState(queryRange, fragment.WithAttributes(attrs...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fragdump: starting read: %v\n", err)
		os.Exit(1)
	}

	total := 0
	for {
		buffers := map[string]*readstate.Buffer{
			readstate.CoordsAttrName: {Data: make([]byte, bufferSize)},
		}
		if attrName != "" {
			buffers[attrName] = &readstate.Buffer{Data: make([]byte, bufferSize)}
		}
		if err := rs.Read(buffers); err != nil {
			fmt.Fprintf(os.Stderr, "fragdump: reading: %v\n", err)
			os.Exit(1)
		}

		coordBuf := buffers[readstate.CoordsAttrName]
		fmt.Printf("batch: %d coordinate bytes, overflow=%v\n", coordBuf.FixedLen(), coordBuf.Overflow)
		if attrName != "" {
			ab := buffers[attrName]
			fmt.Printf("  %s: %d bytes, overflow=%v\n", attrName, ab.FixedLen(), ab.Overflow)
			fmt.Printf("  %x\n", ab.Data[:ab.FixedLen()])
		}
		total += coordBuf.FixedLen()

		if rs.Done() {
			break
		}
	}
	fmt.Printf("total coordinate bytes across all batches: %d\n", total)
}

func printSummary(dir string, sch *schema.Schema) {
	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fragdump: %v\n", err)
		return
	}
	fmt.Printf("=== %s ===\n", dir)
	fmt.Printf("dense: %v, dims: %d, coord-type: %s, cell-order: %s\n", sch.Dense, sch.NumDims, sch.CoordType, sch.CellOrder)
	fmt.Printf("tiles: %d, last tile cell num: %d, tile capacity: %d\n", bk.TileNum, bk.LastTileCellNum, sch.TileCapacity)
	for _, a := range sch.Attributes {
		fmt.Printf("  attribute %q: var=%v cellsize=%d compression=%v\n", a.Name, a.VarSize, a.CellSize, a.Compression)
	}
}

func buildSchema(dims int, domainFlag, coordTypeFlag, cellOrderFlag string, dense bool, tileExtentFlag string, tileCapacity uint64, attrFlags, varAttrFlags []string) (*schema.Schema, error) {
	coordType, err := parseCoordType(coordTypeFlag)
	if err != nil {
		return nil, err
	}
	cellOrder, err := parseCellOrder(cellOrderFlag)
	if err != nil {
		return nil, err
	}

	var domain [][2]float64
	for _, part := range strings.Split(domainFlag, ";") {
		if part == "" {
			continue
		}
		pair := strings.Split(part, ",")
		if len(pair) != 2 {
			return nil, fmt.Errorf("bad domain pair %q", part)
		}
		lo, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, err
		}
		hi, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, err
		}
		domain = append(domain, [2]float64{lo, hi})
	}

	var tileExtent []float64
	if tileExtentFlag != "" {
		tileExtent, err = parseFloats(tileExtentFlag)
		if err != nil {
			return nil, err
		}
	}

	var attrs []schema.Attribute
	for _, f := range attrFlags {
		parts := strings.Split(f, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad --attr %q, want name:cellsize:compression", f)
		}
		cellSize, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return nil, err
		}
		comp, err := parseCompression(parts[2])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, schema.Attribute{Name: parts[0], CellSize: uint32(cellSize), Compression: comp})
	}
	for _, f := range varAttrFlags {
		parts := strings.Split(f, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad --var-attr %q, want name:compression", f)
		}
		comp, err := parseCompression(parts[1])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, schema.Attribute{Name: parts[0], CellSize: 8, VarSize: true, Compression: comp})
	}

	sch := &schema.Schema{
		NumDims:      dims,
		CoordType:    coordType,
		CellOrder:    cellOrder,
		Dense:        dense,
		Domain:       domain,
		TileExtent:   tileExtent,
		TileCapacity: tileCapacity,
		Attributes:   attrs,
	}
	return sch, sch.Validate()
}

func parseCoordType(s string) (schema.CoordType, error) {
	switch s {
	case "int32":
		return schema.Int32, nil
	case "int64":
		return schema.Int64, nil
	case "float32":
		return schema.Float32, nil
	case "float64":
		return schema.Float64, nil
	default:
		return 0, fmt.Errorf("unknown coord-type %q", s)
	}
}

func parseCellOrder(s string) (schema.CellOrder, error) {
	switch s {
	case "row":
		return schema.RowMajor, nil
	case "col":
		return schema.ColumnMajor, nil
	case "hilbert":
		return schema.HilbertOrder, nil
	default:
		return 0, fmt.Errorf("unknown cell-order %q", s)
	}
}

func parseCompression(s string) (schema.CompressionKind, error) {
	switch s {
	case "none", "":
		return schema.NoCompression, nil
	case "gzip":
		return schema.GzipCompression, nil
	case "lz4":
		return schema.LZ4Compression, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
