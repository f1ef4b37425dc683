package mapping

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"github.com/stretchr/testify/assert"
)

var testThingy *testing.T

type expected struct {
	fields   map[string]FieldType
	snapshot []map[string]FieldType
}

type system struct {
	c        *Coordinator
	cfg      Config
	snapshot []*Mapping
	refs     []SnapshotRef
	cmdCount int
}

const (
	uimax      = 99_999
	nPaths     = 64
	nSnapshots = 5
)

var (
	cmdCount    = 0
	maxFields   = 0
	debug       = false
	exerciseCfg = func() Config {
		return Config{StoreSnapshotsWith: NewInMemoryStore(), SnapshotCache: NewSnapshotCache(16)}
	}
)

func progress(i interface{}) {
	if debug {
		fmt.Printf("%v\n", i)
	}
}

// pathOf spreads command values over a fixed set of paths: even ones under
// a few shared objects, odd ones at the root.
func pathOf(v uint) string {
	n := v % nPaths
	if n%2 == 0 {
		return fmt.Sprintf("o%d.f%d", n%4, n)
	}
	return fmt.Sprintf("f%d", n)
}

func typeOf(v uint) FieldType {
	return testTypes[(v/nPaths)%uint(len(testTypes))]
}

func deltaOf(fields map[string]FieldType) (*Mapping, error) {
	props := map[string]interface{}{}
	for path, typ := range fields {
		parent, name := parentPath(path)
		target := props
		if parent != "" {
			obj, ok := props[parent].(map[string]interface{})
			if !ok {
				obj = map[string]interface{}{"properties": map[string]interface{}{}}
				props[parent] = obj
			}
			target = obj["properties"].(map[string]interface{})
		}
		target[name] = map[string]interface{}{"type": string(typ)}
	}
	return FromTree(map[string]interface{}{"properties": props})
}

func fieldsOf(m *Mapping) map[string]FieldType {
	out := map[string]FieldType{}
	for _, p := range m.FieldPaths() {
		if n, ok := m.Lookup(p); ok {
			if f, ok := n.(*FieldNode); ok {
				out[p] = f.Type()
			}
		}
	}
	return out
}

func copyFields(fields map[string]FieldType) map[string]FieldType {
	out := make(map[string]FieldType, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type addFieldCommand uint

func (v addFieldCommand) Run(s commands.SystemUnderTest) commands.Result {
	delta, err := deltaOf(map[string]FieldType{pathOf(uint(v)): typeOf(uint(v))})
	if err != nil {
		return err
	}
	s.(*system).cmdCount++
	_, err = s.(*system).c.ApplyUpdate(delta, RuntimeUpdate)
	return err
}

func (v addFieldCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	if _, ok := s.fields[pathOf(uint(v))]; !ok {
		s.fields[pathOf(uint(v))] = typeOf(uint(v))
	}
	return s
}

func (v addFieldCommand) PreCondition(state commands.State) bool { return true }

func (v addFieldCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	// NextState never replaces a type, so a differing one was there before.
	conflicts := state.(*expected).fields[pathOf(uint(v))] != typeOf(uint(v))
	err, _ := result.(error)
	var terr *TypeConflictError
	if conflicts != (err != nil) || (err != nil && !assert.ErrorAs(testThingy, err, &terr)) {
		fmt.Printf("addFieldPostCondition: %v conflicts=%v err=%v\n", v, conflicts, err)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(v)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (v addFieldCommand) String() string {
	return fmt.Sprintf("AddField(%s,%s)", pathOf(uint(v)), typeOf(uint(v)))
}

var genAddField = uintCommandGen(
	func(v uint) commands.Command { return addFieldCommand(v) },
	func(command interface{}) uint { return uint(command.(addFieldCommand)) })

type templateCommand uint

func (v templateCommand) Run(s commands.SystemUnderTest) commands.Result {
	delta, err := deltaOf(map[string]FieldType{pathOf(uint(v)): typeOf(uint(v))})
	if err != nil {
		return err
	}
	s.(*system).cmdCount++
	_, err = s.(*system).c.ApplyUpdate(delta, TemplateCompose)
	return err
}

func (v templateCommand) NextState(state commands.State) commands.State {
	state.(*expected).fields[pathOf(uint(v))] = typeOf(uint(v))
	return state
}

func (v templateCommand) PreCondition(state commands.State) bool { return true }

func (v templateCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result != nil {
		fmt.Printf("templatePostCondition: %v\n", result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(v)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (v templateCommand) String() string {
	return fmt.Sprintf("Template(%s,%s)", pathOf(uint(v)), typeOf(uint(v)))
}

var genTemplate = uintCommandGen(
	func(v uint) commands.Command { return templateCommand(v) },
	func(command interface{}) uint { return uint(command.(templateCommand)) })

type lookupCommand uint

func (v lookupCommand) Run(s commands.SystemUnderTest) commands.Result {
	s.(*system).cmdCount++
	n, ok := s.(*system).c.Lookup(pathOf(uint(v)))
	if !ok {
		return FieldType("")
	}
	return FieldType(n.TypeName())
}

func (v lookupCommand) NextState(state commands.State) commands.State { return state }

func (v lookupCommand) PreCondition(state commands.State) bool { return true }

func (v lookupCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	want := state.(*expected).fields[pathOf(uint(v))]
	if result.(FieldType) != want {
		fmt.Printf("lookupPostCondition: %s expected=%q actual=%q\n", pathOf(uint(v)), want, result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(v)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (v lookupCommand) String() string {
	return fmt.Sprintf("Lookup(%s)", pathOf(uint(v)))
}

var genLookup = uintCommandGen(
	func(v uint) commands.Command { return lookupCommand(v) },
	func(command interface{}) uint { return uint(command.(lookupCommand)) })

var FieldsCommand = &commands.ProtoCommand{
	Name: "Fields",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		s.(*system).cmdCount++
		return fieldsOf(s.(*system).c.Read())
	},
	NextStateFunc:    func(state commands.State) commands.State { return state },
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		fields := state.(*expected).fields
		if len(fields) > maxFields {
			maxFields = len(fields)
		}
		if !reflect.DeepEqual(fields, result) {
			assert.Equal(testThingy, fields, result)
			return &gopter.PropResult{Status: gopter.PropFalse}
		}
		progress("Fields")
		return &gopter.PropResult{Status: gopter.PropTrue}
	},
}

type snapshotCommand uint

func (n snapshotCommand) Run(s commands.SystemUnderTest) commands.Result {
	slot := int(n) % nSnapshots
	sys := s.(*system)
	ref, err := sys.c.Save(ctx)
	if err != nil {
		return err
	}
	sys.snapshot[slot] = sys.c.Read()
	sys.refs[slot] = ref
	return nil
}

func (n snapshotCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	s.snapshot[int(n)%nSnapshots] = copyFields(s.fields)
	return s
}

func (n snapshotCommand) PreCondition(state commands.State) bool { return true }

func (n snapshotCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result != nil {
		fmt.Printf("snapshotPostCondition: %v\n", result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(n)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (n snapshotCommand) String() string {
	return fmt.Sprintf("Snapshot(%d)", int(n)%nSnapshots)
}

var genSnapshot = uintCommandGen(
	func(slot uint) commands.Command { return snapshotCommand(slot) },
	func(command interface{}) uint { return uint(command.(snapshotCommand)) })

type diffCommand uint

func (n diffCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	old := sys.snapshot[int(n)%nSnapshots]
	cur := sys.c.Read()
	diffs := map[string]map[string]FieldType{"added": {}, "changed": {}, "removed": {}}
	err := cur.DiffIter(old, func(added, removed bool, path string, addedNode, removedNode Node) (bool, error) {
		switch {
		case removed:
			diffs["removed"][path] = FieldType(removedNode.TypeName())
		case added:
			if addedNode.Kind() == KindField {
				diffs["added"][path] = FieldType(addedNode.TypeName())
			}
		default:
			diffs["changed"][path] = FieldType(addedNode.TypeName())
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("diffIter: %w", err)
	}
	sys.cmdCount++
	return diffs
}

func (n diffCommand) NextState(state commands.State) commands.State { return state }

func (n diffCommand) PreCondition(state commands.State) bool {
	return state.(*expected).snapshot[int(n)%nSnapshots] != nil
}

func (n diffCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if err, ok := result.(error); ok {
		fmt.Printf("diff: %v\n", err)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	s := state.(*expected)
	old := s.snapshot[int(n)%nSnapshots]
	diffs := map[string]map[string]FieldType{"added": {}, "changed": {}, "removed": {}}
	for path, typ := range s.fields {
		oldTyp, existed := old[path]
		switch {
		case !existed:
			diffs["added"][path] = typ
		case oldTyp != typ:
			diffs["changed"][path] = typ
		}
	}
	if !reflect.DeepEqual(diffs, result) {
		assert.Equal(testThingy, diffs, result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(n)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (n diffCommand) String() string {
	return fmt.Sprintf("Diff(%d)", int(n)%nSnapshots)
}

var genDiff = uintCommandGen(
	func(slot uint) commands.Command { return diffCommand(slot) },
	func(command interface{}) uint { return uint(command.(diffCommand)) })

type loadCommand uint

func (n loadCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	slot := int(n) % nSnapshots
	loaded, err := Load(ctx, sys.refs[slot], Config{StoreSnapshotsWith: sys.cfg.StoreSnapshotsWith})
	if err != nil {
		return err
	}
	sys.cmdCount++
	if !Equal(loaded, sys.snapshot[slot]) || loaded.Generation() != sys.snapshot[slot].Generation() {
		return fmt.Errorf("loaded %v, saved %v", loaded, sys.snapshot[slot])
	}
	return fieldsOf(loaded)
}

func (n loadCommand) NextState(state commands.State) commands.State { return state }

func (n loadCommand) PreCondition(state commands.State) bool {
	return state.(*expected).snapshot[int(n)%nSnapshots] != nil
}

func (n loadCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	old := state.(*expected).snapshot[int(n)%nSnapshots]
	if !reflect.DeepEqual(old, result) {
		fmt.Printf("loadPostCondition: expected=%v actual=%v\n", old, result)
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	progress(n)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (n loadCommand) String() string {
	return fmt.Sprintf("Load(%d)", int(n)%nSnapshots)
}

var genLoad = uintCommandGen(
	func(slot uint) commands.Command { return loadCommand(slot) },
	func(command interface{}) uint { return uint(command.(loadCommand)) })

func uintCommandGen(toCommand func(uint) commands.Command, fromCommand func(interface{}) uint) gopter.Gen {
	return gen.UIntRange(0, uimax).Map(func(value uint) commands.Command {
		return toCommand(value)
	}).WithShrinker(func(v interface{}) gopter.Shrink {
		return gen.UIntShrinker(fromCommand(v)).Map(func(value uint) commands.Command {
			return toCommand(value)
		})
	})
}

var mappingCommands = &commands.ProtoCommands{
	NewSystemUnderTestFunc: func(initialState commands.State) commands.SystemUnderTest {
		delta, err := deltaOf(initialState.(*expected).fields)
		if err != nil {
			return err
		}
		cfg := exerciseCfg()
		c, err := NewCoordinator("exerciser", delta, cfg)
		if err != nil {
			return err
		}
		progress("NewSystem")
		return &system{c, cfg, make([]*Mapping, nSnapshots), make([]SnapshotRef, nSnapshots), 0}
	},
	DestroySystemUnderTestFunc: func(s commands.SystemUnderTest) {
		cmdCount += s.(*system).cmdCount
	},
	InitialStateGen: gen.SliceOf(gen.UIntRange(0, uimax)).Map(func(values []uint) *expected {
		fields := map[string]FieldType{}
		for _, v := range values {
			if _, ok := fields[pathOf(v)]; !ok {
				fields[pathOf(v)] = typeOf(v)
			}
		}
		return &expected{
			fields:   fields,
			snapshot: make([]map[string]FieldType, nSnapshots),
		}
	}),
	InitialPreConditionFunc: func(state commands.State) bool {
		_ = state.(*expected)
		return true
	},
	GenCommandFunc: func(state commands.State) gopter.Gen {
		return gen.Weighted(
			[]gen.WeightedGen{
				{Weight: 100, Gen: genAddField},
				{Weight: 10, Gen: genTemplate},
				{Weight: 50, Gen: genLookup},
				{Weight: 5, Gen: genSnapshot},
				{Weight: 5, Gen: genDiff},
				{Weight: 2, Gen: genLoad},
				{Weight: 10, Gen: gen.Const(FieldsCommand)},
			},
		)
	},
}

func TestExerciser(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	if !testing.Short() {
		parameters.MaxSize = 256
	}
	properties := gopter.NewProperties(parameters)
	properties.Property("mapping exerciser", commands.Prop(mappingCommands))
	testThingy = t
	properties.TestingRun(t)
	testThingy = nil
	if !t.Failed() {
		assert.Greater(t, maxFields, 0)
		fmt.Printf("most fields: %d\n", maxFields)
		fmt.Printf("successful commands: %d\n", cmdCount)
	}
}
