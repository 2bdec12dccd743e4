package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSchema is the human-authored on-disk shape of a schema description
// file: string-keyed enum spellings instead of Schema's int constants, so
// a YAML document stays readable (coord_type: int64, not coord_type: 1).
type yamlSchema struct {
	NumDims           int              `yaml:"dims"`
	CoordType         string           `yaml:"coord_type"`
	CellOrder         string           `yaml:"cell_order"`
	Dense             bool             `yaml:"dense"`
	Domain            [][2]float64     `yaml:"domain"`
	TileExtent        []float64        `yaml:"tile_extent"`
	TileCapacity      uint64           `yaml:"tile_capacity"`
	CoordsCompression string           `yaml:"coords_compression"`
	Attributes        []yamlAttribute  `yaml:"attributes"`
}

type yamlAttribute struct {
	Name        string `yaml:"name"`
	CellSize    uint32 `yaml:"cell_size"`
	VarSize     bool   `yaml:"var_size"`
	Compression string `yaml:"compression"`
}

// LoadYAML reads a schema description file, the format cmd/fragdump's
// --schema-file flag accepts as an alternative to spelling out every
// dimension on the command line.
func LoadYAML(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}
	var y yamlSchema
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return nil, fmt.Errorf("schema: parsing %s: %w", path, err)
	}
	return y.toSchema()
}

func (y yamlSchema) toSchema() (*Schema, error) {
	coordType, err := parseCoordTypeYAML(y.CoordType)
	if err != nil {
		return nil, err
	}
	cellOrder, err := parseCellOrderYAML(y.CellOrder)
	if err != nil {
		return nil, err
	}
	coordsComp, err := parseCompressionYAML(y.CoordsCompression)
	if err != nil {
		return nil, err
	}

	attrs := make([]Attribute, len(y.Attributes))
	for i, a := range y.Attributes {
		comp, err := parseCompressionYAML(a.Compression)
		if err != nil {
			return nil, fmt.Errorf("schema: attribute %q: %w", a.Name, err)
		}
		attrs[i] = Attribute{
			Name:        a.Name,
			CellSize:    a.CellSize,
			VarSize:     a.VarSize,
			Compression: comp,
		}
	}

	sch := &Schema{
		NumDims:           y.NumDims,
		CoordType:         coordType,
		CellOrder:         cellOrder,
		Dense:             y.Dense,
		Domain:            y.Domain,
		TileExtent:        y.TileExtent,
		TileCapacity:      y.TileCapacity,
		Attributes:        attrs,
		CoordsCompression: coordsComp,
	}
	return sch, sch.Validate()
}

func parseCoordTypeYAML(s string) (CoordType, error) {
	switch s {
	case "int32":
		return Int32, nil
	case "int64", "":
		return Int64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("schema: unknown coord_type %q", s)
	}
}

func parseCellOrderYAML(s string) (CellOrder, error) {
	switch s {
	case "row", "", "row_major":
		return RowMajor, nil
	case "col", "column_major":
		return ColumnMajor, nil
	case "hilbert":
		return HilbertOrder, nil
	default:
		return 0, fmt.Errorf("schema: unknown cell_order %q", s)
	}
}

func parseCompressionYAML(s string) (CompressionKind, error) {
	switch s {
	case "none", "":
		return NoCompression, nil
	case "gzip":
		return GzipCompression, nil
	case "lz4":
		return LZ4Compression, nil
	default:
		return 0, fmt.Errorf("schema: unknown compression %q", s)
	}
}
