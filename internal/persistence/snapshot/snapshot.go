package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	SaveID        string `json:"save_id"`
	Tick          uint64 `json:"tick"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	SavedAtUnix   int64  `json:"saved_at_unix,omitempty"`
}

// SaveV1 is everything needed to rehydrate an engine: buildings, graph,
// resource fields, the global fallback stock and the client viewport.
type SaveV1 struct {
	Header Header `json:"header"`

	TickRate int `json:"tick_rate_hz"`

	Buildings      []BuildingV1      `json:"buildings"`
	Connections    []ConnectionV1    `json:"connections"`
	ResourceFields []ResourceFieldV1 `json:"resource_fields"`

	GlobalInventory map[string]int `json:"global_inventory"`
	StorageCapacity int            `json:"storage_capacity"`

	Viewport ViewportV1 `json:"viewport"`
}

type BuildingV1 struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Pos            [2]float64     `json:"pos"`
	Inventory      map[string]int `json:"inventory"`
	EnergyShortage bool           `json:"energy_shortage,omitempty"`
	// Ports holds per-output-port reserved stock (utilities only).
	Ports []map[string]int `json:"ports,omitempty"`
}

type ConnectionV1 struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	TargetPort string `json:"target_port"`
	SourcePort string `json:"source_port"`
}

type ResourceFieldV1 struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Rect      [4]float64 `json:"rect"` // x, y, width, height
	Intensity float64    `json:"intensity"`
}

type ViewportV1 struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

func WriteSave(path string, save SaveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeSave(tmp, save); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeSave(path string, save SaveV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(save.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&save); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSave(path string) (SaveV1, error) {
	var save SaveV1
	f, err := os.Open(path)
	if err != nil {
		return save, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return save, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is duplicated inside the gob payload.
	if _, err := br.ReadBytes('\n'); err != nil {
		return save, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&save); err != nil {
		return save, fmt.Errorf("gob decode: %w", err)
	}
	if save.Header.Version != Version {
		return save, fmt.Errorf("unsupported save version %d", save.Header.Version)
	}
	return save, nil
}

// ReadHeader decodes only the leading JSON line, for listing saves cheaply.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
