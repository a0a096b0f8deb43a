package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/born/loader"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// classifierPrefix is torchvision's name for the layers bfc is built from.
const classifierPrefix = "classifier."

// LoadBackbone copies pretrained AlexNet weights from a SafeTensors or GGUF
// file into the network.
//
// Every "features.*" parameter must be present. The hidden classifier
// layers ("classifier.1.*", "classifier.4.*" in torchvision naming) are
// copied into bfc.1 and bfc.4 when the file has them; bfc.6 and fc keep
// their initialization. Returns the names of the loaded tensors.
func (m *BilinearAlexNet[B]) LoadBackbone(path string) ([]string, error) {
	reader, err := loader.OpenModel(path)
	if err != nil {
		return nil, errdefs.NewIOError("open backbone", path, err)
	}
	defer reader.Close()

	available := make(map[string]bool)
	for _, name := range reader.TensorNames() {
		available[name] = true
	}

	var loaded []string
	for name, p := range m.namedParameters() {
		source, required := backboneSource(name)
		if source == "" {
			continue
		}
		if !available[source] {
			if required {
				return nil, errdefs.NewIOError("load backbone", path, fmt.Errorf("missing tensor %q", source))
			}
			continue
		}
		raw, err := reader.LoadTensor(source, m.backend)
		if err != nil {
			return nil, errdefs.NewIOError("load backbone", path, fmt.Errorf("%s: %w", source, err))
		}
		if err := copyInto(p, raw); err != nil {
			return nil, errdefs.NewIOError("load backbone", path, fmt.Errorf("%s: %w", source, err))
		}
		loaded = append(loaded, name)
	}
	slices.Sort(loaded)
	return loaded, nil
}

// backboneSource maps a parameter name to the pretrained tensor it is
// loaded from, and whether that tensor is mandatory.
func backboneSource(name string) (source string, required bool) {
	switch {
	case strings.HasPrefix(name, "features."):
		return name, true
	case strings.HasPrefix(name, "bfc.1."), strings.HasPrefix(name, "bfc.4."):
		return classifierPrefix + strings.TrimPrefix(name, "bfc."), false
	default:
		return "", false
	}
}
