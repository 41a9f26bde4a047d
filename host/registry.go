package host

import (
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/ollama/seg/ml/nn"
)

const KindCrossAttention = "CrossAttention"

// NamedModule is an attention block declared by the model at load time.
type NamedModule struct {
	NetworkLayerName string
	Kind             string
	Attention        *nn.CrossAttention
}

// Registry lists a model's attention modules in declaration order.
type Registry struct {
	modules *linkedhashmap.Map
}

func NewRegistry() *Registry {
	return &Registry{modules: linkedhashmap.New()}
}

// Register declares a module. Registering a name twice replaces the module
// but keeps its original position.
func (r *Registry) Register(name, kind string, attn *nn.CrossAttention) {
	r.modules.Put(name, NamedModule{NetworkLayerName: name, Kind: kind, Attention: attn})
}

func (r *Registry) Get(name string) (NamedModule, bool) {
	v, ok := r.modules.Get(name)
	if !ok {
		return NamedModule{}, false
	}
	return v.(NamedModule), true
}

func (r *Registry) Len() int {
	return r.modules.Size()
}

// Filter returns modules whose layer name contains layer and whose kind
// equals kind. Empty filters match everything.
func (r *Registry) Filter(layer, kind string) []NamedModule {
	var out []NamedModule
	it := r.modules.Iterator()
	for it.Next() {
		m := it.Value().(NamedModule)
		if layer != "" && !strings.Contains(m.NetworkLayerName, layer) {
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Modules returns every registered module.
func (r *Registry) Modules() []NamedModule {
	return r.Filter("", "")
}
