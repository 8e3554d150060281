// Package snapshot persists a controller's parameter values to a
// binary stream and restores them, so a session can be saved and
// reopened with every knob where the user left it.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/justyntemme/audiograph/pkg/controller"
	"github.com/justyntemme/audiograph/pkg/graph"
)

const (
	magic         = "AGRAPH1"
	formatVersion = uint32(1)
)

// Save writes settings to w in this engine's session format.
func Save(w io.Writer, settings []controller.ParamSetting) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(settings))); err != nil {
		return err
	}

	for _, s := range settings {
		if err := binary.Write(w, binary.LittleEndian, s.Node.RawID()); err != nil {
			return err
		}
		if err := writeString(w, s.Port); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Load reads settings previously written by Save. Unknown future
// sections are not attempted: a version newer than formatVersion is
// rejected outright rather than guessed at.
func Load(r io.Reader) ([]controller.ParamSetting, error) {
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if string(header) != magic {
		return nil, fmt.Errorf("snapshot: invalid header %q", header)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version > formatVersion {
		return nil, fmt.Errorf("snapshot: format version %d is newer than supported version %d", version, formatVersion)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	settings := make([]controller.ParamSetting, 0, count)
	for i := uint32(0); i < count; i++ {
		var rawNode uint32
		if err := binary.Read(r, binary.LittleEndian, &rawNode); err != nil {
			return nil, err
		}
		port, err := readString(r)
		if err != nil {
			return nil, err
		}
		var value float32
		if err := binary.Read(r, binary.LittleEndian, &value); err != nil {
			return nil, err
		}
		settings = append(settings, controller.ParamSetting{
			Node:  graph.NewNodeRef(rawNode),
			Port:  port,
			Value: value,
		})
	}
	return settings, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
