package guidance

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/ollama/seg/host"
)

// Metadata keys written to the generation parameters.
const (
	KeyActive    = "SEG Active"
	KeyBlurSigma = "SEG Blur Sigma"
	KeyStartStep = "SEG Start Step"
	KeyEndStep   = "SEG End Step"
)

// Request field names. Parameter sweeps set these on the request to
// override the UI values.
const (
	FieldActive    = "seg_active"
	FieldBlurSigma = "seg_blur_sigma"
	FieldStartStep = "seg_start_step"
	FieldEndStep   = "seg_end_step"
)

// argFields lists the request fields in UI control order.
var argFields = []string{FieldActive, FieldBlurSigma, FieldStartStep, FieldEndStep}

// Params are the user facing guidance settings.
type Params struct {
	Active    bool    `mapstructure:"seg_active" json:"seg_active"`
	BlurSigma float64 `mapstructure:"seg_blur_sigma" json:"seg_blur_sigma"`
	StartStep int     `mapstructure:"seg_start_step" json:"seg_start_step"`
	EndStep   int     `mapstructure:"seg_end_step" json:"seg_end_step"`
}

func DefaultParams() Params {
	return Params{
		Active:    false,
		BlurSigma: 11,
		StartStep: 0,
		EndStep:   150,
	}
}

func decode(input map[string]any, p *Params) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           p,
	})
	if err != nil {
		return err
	}

	return dec.Decode(input)
}

// ParamsFromArgs reads positional UI values (active, blur sigma, start step,
// end step). Missing trailing values keep their defaults.
func ParamsFromArgs(args ...any) (Params, error) {
	p := DefaultParams()

	input := make(map[string]any, len(args))
	for i, arg := range args {
		if i >= len(argFields) {
			break
		}
		input[argFields[i]] = arg
	}

	if err := decode(input, &p); err != nil {
		return DefaultParams(), fmt.Errorf("seg arguments: %w", err)
	}

	return p, nil
}

// Resolve combines the UI values with fields set on the request. Request
// fields win.
func Resolve(req *host.Processing, args ...any) (Params, error) {
	p, err := ParamsFromArgs(args...)
	if err != nil {
		return p, err
	}

	overrides := make(map[string]any)
	for _, field := range argFields {
		if v, ok := req.Lookup(field); ok {
			overrides[field] = v
		}
	}

	if err := decode(overrides, &p); err != nil {
		return p, fmt.Errorf("seg request fields: %w", err)
	}

	return p, nil
}

// Infotext returns the generation metadata for p.
func (p Params) Infotext() map[string]any {
	return map[string]any{
		KeyActive:    p.Active,
		KeyBlurSigma: p.BlurSigma,
		KeyStartStep: p.StartStep,
		KeyEndStep:   p.EndStep,
	}
}

// ParamsFromInfotext restores params from parsed generation metadata. Any
// metadata carrying the Active key activates guidance.
func ParamsFromInfotext(d map[string]string) (Params, error) {
	p := DefaultParams()

	input := make(map[string]any)
	for key, field := range map[string]string{
		KeyBlurSigma: FieldBlurSigma,
		KeyStartStep: FieldStartStep,
		KeyEndStep:   FieldEndStep,
	} {
		if v, ok := d[key]; ok {
			input[field] = v
		}
	}

	if err := decode(input, &p); err != nil {
		return DefaultParams(), fmt.Errorf("seg infotext: %w", err)
	}

	_, p.Active = d[KeyActive]
	return p, nil
}

// MarshalBinary encodes p as CBOR for binary metadata chunks.
func (p Params) MarshalBinary() ([]byte, error) {
	type plain Params
	return cbor.Marshal(plain(p))
}

func (p *Params) UnmarshalBinary(b []byte) error {
	type plain Params
	var v plain
	if err := cbor.Unmarshal(b, &v); err != nil {
		return err
	}

	*p = Params(v)
	return nil
}
