package model

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bcnn/internal/errdefs"
)

type safeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// writeSafeTensors writes float32 tensors to path in SafeTensors layout.
func writeSafeTensors(t *testing.T, path string, tensors map[string]*tensor.RawTensor) {
	t.Helper()

	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var data []byte
	for name, raw := range tensors {
		start := int64(len(data))
		data = append(data, raw.Data()...)
		header[name] = safeTensorInfo{
			DType:       "F32",
			Shape:       raw.Shape(),
			DataOffsets: [2]int64{start, int64(len(data))},
		}
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, binary.Write(f, binary.LittleEndian, uint64(len(headerJSON))))
	_, err = f.Write(headerJSON)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
}

// torchvisionTensors renames a network's state dict to torchvision AlexNet
// keys, dropping the layers torchvision does not have.
func torchvisionTensors(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for name, raw := range sd {
		switch {
		case strings.HasPrefix(name, "features."):
			out[name] = raw
		case strings.HasPrefix(name, "bfc.1."), strings.HasPrefix(name, "bfc.4."):
			out["classifier."+strings.TrimPrefix(name, "bfc.")] = raw
		}
	}
	return out
}

func TestLoadBackbone(t *testing.T) {
	src, _ := newTinyNet(t, FreezePart)
	dst, _ := newTinyNet(t, FreezePart)

	path := filepath.Join(t.TempDir(), "alexnet.safetensors")
	writeSafeTensors(t, path, torchvisionTensors(src.StateDict()))

	fcBefore := append([]float32(nil), dst.StateDict()["fc.weight"].AsFloat32()...)

	loaded, err := dst.LoadBackbone(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 14)

	want := src.StateDict()
	got := dst.StateDict()
	for _, name := range loaded {
		assert.Equal(t, want[name].AsFloat32(), got[name].AsFloat32(), name)
	}
	assert.Equal(t, fcBefore, got["fc.weight"].AsFloat32(), "fc keeps its initialization")
}

func TestLoadBackbone_FeaturesOnly(t *testing.T) {
	src, _ := newTinyNet(t, FreezePart)
	dst, _ := newTinyNet(t, FreezePart)

	tensors := torchvisionTensors(src.StateDict())
	for name := range tensors {
		if strings.HasPrefix(name, "classifier.") {
			delete(tensors, name)
		}
	}
	path := filepath.Join(t.TempDir(), "features.safetensors")
	writeSafeTensors(t, path, tensors)

	loaded, err := dst.LoadBackbone(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 10)
}

func TestLoadBackbone_Errors(t *testing.T) {
	net, _ := newTinyNet(t, FreezePart)
	dir := t.TempDir()

	_, err := net.LoadBackbone(filepath.Join(dir, "missing.safetensors"))
	assert.ErrorIs(t, err, errdefs.ErrIO)

	tensors := torchvisionTensors(net.StateDict())
	delete(tensors, "features.10.bias")
	path := filepath.Join(dir, "partial.safetensors")
	writeSafeTensors(t, path, tensors)

	_, err = net.LoadBackbone(path)
	assert.ErrorIs(t, err, errdefs.ErrIO)
	assert.ErrorContains(t, err, "features.10.bias")
}
