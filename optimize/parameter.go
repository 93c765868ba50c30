package optimize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	// MIN and MAX limit the range of random starting values for
	// unbounded parameters.
	MIN = -10
	MAX = +10
)

// FloatParameter is a bounded real parameter of an Optimizable.
type FloatParameter interface {
	Name() string
	Prior() float64
	OldPrior() float64
	Propose()
	Accept(int)
	Reject()
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetProposalFunc(func(float64) float64)
	SetPriorFunc(func(float64) float64)
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
}

// FloatParameterGenerator creates a parameter bound to a value.
type FloatParameterGenerator func(*float64, string) FloatParameter

// FloatParameters is an ordered parameter collection.
type FloatParameters []FloatParameter

// Append adds a parameter.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns parameter names, s is reused if it has the right
// length.
func (p *FloatParameters) Names(s []string) []string {
	if len(s) != len(*p) {
		s = make([]string, len(*p))
	}
	for i, par := range *p {
		s[i] = par.Name()
	}
	return s
}

// Values returns parameter values, v is reused if it has the right
// length.
func (p *FloatParameters) Values(v []float64) []float64 {
	if len(v) != len(*p) {
		v = make([]float64, len(*p))
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return v
}

// ValuesInRange tells if every value is inside of its parameter
// bounds.
func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("Incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

// SetValues sets all the parameter values.
func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return fmt.Errorf("incorrect number of parameters: expected %d, got %d", len(*p), len(v))
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// SetFromMap sets parameter values from a name→value map. All the
// parameters should be present and no other names are allowed.
func (p *FloatParameters) SetFromMap(m map[string]float64) error {
	if len(m) != len(*p) {
		return fmt.Errorf("incorrect number of parameters: expected %d, got %d", len(*p), len(m))
	}
	v := make([]float64, len(*p))
	for i, par := range *p {
		val, ok := m[par.Name()]
		if !ok {
			return fmt.Errorf("parameter %s not found", par.Name())
		}
		v[i] = val
	}
	return p.SetValues(v)
}

// ReadLine sets values from a trajectory line (iteration,
// likelihood, values).
func (p *FloatParameters) ReadLine(l string) error {
	v, err := readFloats(l)
	if err != nil {
		return err
	}
	if len(v) < 2 {
		return fmt.Errorf("trajectory line is too short: %q", l)
	}
	return p.SetValues(v[2:])
}

// ReadFromJSON sets values from a JSON file with a name→value
// object.
func (p *FloatParameters) ReadFromJSON(fn string) error {
	b, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, p)
}

// MarshalJSON encodes parameters as an object preserving the
// parameter order.
func (p FloatParameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, par := range p {
		if i != 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(par.Name())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(par.Get())
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %v", par.Name(), err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON sets parameter values from a name→value object.
func (p *FloatParameters) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	return p.SetFromMap(m)
}

// Randomize sets uniform random values inside of the bounds,
// limited by MIN and MAX.
func (p *FloatParameters) Randomize() {
	for _, par := range *p {
		min := math.Max(MIN, par.GetMin())
		max := math.Min(MAX, par.GetMax())
		par.Set(UniformGlobalProposal(min, max)(par.Get()))
	}
}

// InRange tells if all the parameters are inside of their bounds.
func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// Prior returns the sum of log priors.
func (p *FloatParameters) Prior() (s float64) {
	for _, par := range *p {
		s += par.Prior()
	}
	return
}

// NamesString returns tab separated parameter names.
func (p *FloatParameters) NamesString() string {
	return strings.Join(p.Names(nil), "\t")
}

// ValuesString returns tab separated parameter values.
func (p *FloatParameters) ValuesString() string {
	s := make([]string, len(*p))
	for i, par := range *p {
		s[i] = par.String()
	}
	return strings.Join(s, "\t")
}

// BasicFloatParameter is a FloatParameter storing its value in a
// float64 owned by the model.
type BasicFloatParameter struct {
	*float64
	old          float64
	name         string
	priorFunc    func(float64) float64
	proposalFunc func(float64) float64
	min          float64
	max          float64
}

// NewBasicFloatParameter creates an unbounded parameter with a flat
// prior.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64:      par,
		name:         name,
		priorFunc:    FlatPrior(),
		proposalFunc: NormalProposal(1),
		min:          math.Inf(-1),
		max:          math.Inf(+1),
	}
}

// BasicFloatParameterGenerator is a FloatParameterGenerator for
// BasicFloatParameter.
func BasicFloatParameterGenerator(par *float64, name string) FloatParameter {
	return NewBasicFloatParameter(par, name)
}

func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

func (p *BasicFloatParameter) SetPriorFunc(f func(float64) float64) {
	p.priorFunc = f
}

func (p *BasicFloatParameter) SetProposalFunc(f func(float64) float64) {
	p.proposalFunc = f
}

func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

func (p *BasicFloatParameter) Set(v float64) {
	*p.float64 = v
}

func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

func (p *BasicFloatParameter) Name() string {
	return p.name
}

func (p *BasicFloatParameter) Prior() float64 {
	return p.priorFunc(*p.float64)
}

func (p *BasicFloatParameter) OldPrior() float64 {
	return p.priorFunc(p.old)
}

// reflect folds x into [min, max] as if the bounds were mirrors.
func reflect(x, min, max float64) float64 {
	switch {
	case x >= min && x <= max:
		return x
	case math.IsInf(max, +1):
		return min + math.Abs(x-min)
	case math.IsInf(min, -1):
		return max - math.Abs(x-max)
	}
	w := max - min
	d := math.Mod(math.Abs(x-min), 2*w)
	if d > w {
		d = 2*w - d
	}
	return min + d
}

func (p *BasicFloatParameter) Propose() {
	p.old = *p.float64
	*p.float64 = reflect(p.proposalFunc(p.old), p.min, p.max)
}

func (p *BasicFloatParameter) Reject() {
	*p.float64, p.old = p.old, *p.float64
}

func (p *BasicFloatParameter) Accept(iter int) {
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
