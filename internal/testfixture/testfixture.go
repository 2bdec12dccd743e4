// Package testfixture builds small synthetic fragment directories on
// disk for tests: a bookkeeping file plus per-attribute .tdb files,
// generated straight from in-memory cell values rather than recovered
// from any real write path (fragread implements only the read path).
package testfixture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/codec"
	"github.com/arrayfs/fragread/internal/schema"
)

// Dense writes a dense fragment directory with one fixed-size uint32
// attribute named "value", cell order row-major, tiled into tileNum
// tiles of tileCapacity cells each (the last possibly short), where
// cell i (0-based, global, in storage order) holds the uint32 value
// values[i]. Passing compress=true gzip-compresses each tile
// independently, recording per-tile compressed offsets in bookkeeping.
func Dense(dir string, sch *schema.Schema, values []uint32, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	cellSize := 4
	tileCap := int(sch.TileCapacity)

	var file bytes.Buffer
	var tileOffsets []uint64
	var checksums []uint32
	for start := 0; start < len(values); start += tileCap {
		end := start + tileCap
		if end > len(values) {
			end = len(values)
		}
		tile := values[start:end]

		raw := make([]byte, len(tile)*cellSize)
		for i, v := range tile {
			raw[i*4] = byte(v)
			raw[i*4+1] = byte(v >> 8)
			raw[i*4+2] = byte(v >> 16)
			raw[i*4+3] = byte(v >> 24)
		}
		checksums = append(checksums, codec.Fletcher32(raw))

		tileOffsets = append(tileOffsets, uint64(file.Len()))
		if compress {
			g, err := gzipBytes(raw)
			if err != nil {
				return err
			}
			file.Write(g)
		} else {
			file.Write(raw)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "value.tdb"), file.Bytes(), 0o644); err != nil {
		return err
	}

	tileNum := uint64(len(values)) / sch.TileCapacity
	last := uint64(len(values)) % sch.TileCapacity
	if last == 0 {
		last = sch.TileCapacity
	} else {
		tileNum++
	}

	bk := &bookkeeping.Bookkeeping{
		TileNum:         tileNum,
		LastTileCellNum: last,
		TileChecksums:   map[string][]uint32{"value": checksums},
	}
	if compress {
		bk.TileOffsets = map[string][]uint64{"value": tileOffsets}
	}
	return bookkeeping.Save(filepath.Join(dir, bookkeeping.FileName), bk)
}

// DenseVar writes a dense fragment directory with one variable-size
// byte-string attribute named "value", cell order row-major, tiled
// into tileCapacity-sized tiles (the last possibly short), where cell
// i (0-based, global, storage order) holds values[i]. It writes both
// halves of the on-disk var-attribute layout: a fixed-size offsets
// file (value.tdb, tile-local cumulative uint64 offsets) and a
// variable payload file (value_var.tdb). Passing compress=true
// gzip-compresses each tile's offsets and payload independently.
func DenseVar(dir string, sch *schema.Schema, values [][]byte, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tileCap := int(sch.TileCapacity)

	var offsetsFile, payloadFile bytes.Buffer
	var offsetsFileOffsets, payloadFileOffsets, payloadSizes []uint64
	var checksums []uint32

	for start := 0; start < len(values); start += tileCap {
		end := start + tileCap
		if end > len(values) {
			end = len(values)
		}
		tile := values[start:end]

		var rawOffsets, rawPayload bytes.Buffer
		cum := uint64(0)
		for _, v := range tile {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], cum)
			rawOffsets.Write(b[:])
			rawPayload.Write(v)
			cum += uint64(len(v))
		}

		offsetsFileOffsets = append(offsetsFileOffsets, uint64(offsetsFile.Len()))
		payloadFileOffsets = append(payloadFileOffsets, uint64(payloadFile.Len()))
		payloadSizes = append(payloadSizes, uint64(rawPayload.Len()))
		checksums = append(checksums, codec.Fletcher32(rawPayload.Bytes()))

		if compress {
			go1, err := gzipBytes(rawOffsets.Bytes())
			if err != nil {
				return err
			}
			offsetsFile.Write(go1)
			gp, err := gzipBytes(rawPayload.Bytes())
			if err != nil {
				return err
			}
			payloadFile.Write(gp)
		} else {
			offsetsFile.Write(rawOffsets.Bytes())
			payloadFile.Write(rawPayload.Bytes())
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "value.tdb"), offsetsFile.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "value_var.tdb"), payloadFile.Bytes(), 0o644); err != nil {
		return err
	}

	tileNum := uint64(len(values)) / sch.TileCapacity
	last := uint64(len(values)) % sch.TileCapacity
	if last == 0 {
		last = sch.TileCapacity
	} else {
		tileNum++
	}

	bk := &bookkeeping.Bookkeeping{
		TileNum:         tileNum,
		LastTileCellNum: last,
		TileOffsets:     map[string][]uint64{"value": offsetsFileOffsets},
		TileVarOffsets:  map[string][]uint64{"value": payloadFileOffsets},
		TileVarSizes:    map[string][]uint64{"value": payloadSizes},
		TileChecksums:   map[string][]uint32{"value": checksums},
	}
	return bookkeeping.Save(filepath.Join(dir, bookkeeping.FileName), bk)
}

// SparseCell is one cell of a synthetic sparse fragment: its
// coordinates (NumDims wide) and its "value" attribute.
type SparseCell struct {
	Coords []float64
	Value  uint32
}

// Sparse writes a sparse fragment directory with one fixed-size uint32
// attribute named "value" and a coordinates file, tiling cells (already
// given in their intended on-disk, sorted, storage order) into
// tileCapacity-sized tiles and computing each tile's MBR and bounding
// coordinates from the cells it actually holds. Passing compress=true
// gzip-compresses both the attribute and coordinates tiles.
func Sparse(dir string, sch *schema.Schema, cells []SparseCell, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tileCap := int(sch.TileCapacity)
	ndims := sch.NumDims

	var valueFile, coordFile bytes.Buffer
	var valueOffsets, coordOffsets []uint64
	var mbrs []bookkeeping.Box
	var bounding []bookkeeping.BoundingCoords

	for start := 0; start < len(cells); start += tileCap {
		end := start + tileCap
		if end > len(cells) {
			end = len(cells)
		}
		tile := cells[start:end]

		var rawValues bytes.Buffer
		var rawCoords bytes.Buffer
		mbr := make(bookkeeping.Box, 2*ndims)
		for d := 0; d < ndims; d++ {
			mbr[2*d] = tile[0].Coords[d]
			mbr[2*d+1] = tile[0].Coords[d]
		}
		for _, c := range tile {
			var b [4]byte
			b[0] = byte(c.Value)
			b[1] = byte(c.Value >> 8)
			b[2] = byte(c.Value >> 16)
			b[3] = byte(c.Value >> 24)
			rawValues.Write(b[:])

			for d := 0; d < ndims; d++ {
				eb, err := sch.EncodeCoord(c.Coords[d])
				if err != nil {
					return err
				}
				rawCoords.Write(eb)
				if c.Coords[d] < mbr[2*d] {
					mbr[2*d] = c.Coords[d]
				}
				if c.Coords[d] > mbr[2*d+1] {
					mbr[2*d+1] = c.Coords[d]
				}
			}
		}
		mbrs = append(mbrs, mbr)
		bounding = append(bounding, bookkeeping.BoundingCoords{
			Start: append([]float64(nil), tile[0].Coords...),
			End:   append([]float64(nil), tile[len(tile)-1].Coords...),
		})

		valueOffsets = append(valueOffsets, uint64(valueFile.Len()))
		coordOffsets = append(coordOffsets, uint64(coordFile.Len()))

		if compress {
			gv, err := gzipBytes(rawValues.Bytes())
			if err != nil {
				return err
			}
			valueFile.Write(gv)
			gc, err := gzipBytes(rawCoords.Bytes())
			if err != nil {
				return err
			}
			coordFile.Write(gc)
		} else {
			valueFile.Write(rawValues.Bytes())
			coordFile.Write(rawCoords.Bytes())
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "value.tdb"), valueFile.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "__coords.tdb"), coordFile.Bytes(), 0o644); err != nil {
		return err
	}

	tileNum := uint64(len(mbrs))
	last := uint64(len(cells)) % sch.TileCapacity
	if last == 0 && len(cells) > 0 {
		last = sch.TileCapacity
	}

	bk := &bookkeeping.Bookkeeping{
		TileNum:         tileNum,
		LastTileCellNum: last,
		MBRs:            mbrs,
		BoundingCoords:  bounding,
		TileOffsets: map[string][]uint64{
			"value":    valueOffsets,
			"__coords": coordOffsets,
		},
	}
	return bookkeeping.Save(filepath.Join(dir, bookkeeping.FileName), bk)
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("testfixture: gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("testfixture: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
