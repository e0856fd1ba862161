package probes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/internal/classfile"
	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/internal/testutil"
)

const (
	iconst0  = 0x03
	iconst1  = 0x04
	iconst2  = 0x05
	bipush   = 0x10
	iload1   = 0x1b
	iload2   = 0x1c
	istore1  = 0x3c
	istore2  = 0x3d
	astore1  = 0x4c
	opReturn = byte(classfile.RETURN)
	ireturn  = byte(classfile.IRETURN)
)

// singleMethod maps a class with one public method built by body.
func singleMethod(t *testing.T, body func(b *testutil.ClassBuilder, m *testutil.MethodBuilder)) *ClassProbes {
	t.Helper()
	b := testutil.NewClassBuilder("com/acme/A")
	m := b.Method(testutil.AccPublic, "m", "()V")
	body(b, m)
	cp, err := MapClass(b.Bytes(), AllMethods)
	require.NoError(t, err)
	require.Len(t, cp.Methods, 1)
	return cp
}

func TestMapClass_Methods(t *testing.T) {
	tests := []struct {
		name   string
		body   func(b *testutil.ClassBuilder, m *testutil.MethodBuilder)
		probes []int
	}{
		{
			name: "return only",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				m.RawCode(opReturn).Line(0, 1)
			},
			probes: []int{0},
		},
		{
			name: "two exits",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				m.Code(testutil.NewCode().
					Op(iload1).
					Jump(byte(classfile.IFEQ), "else").
					Op(iconst1).Op(ireturn).
					Mark("else").Op(iconst2).Op(ireturn))
			},
			probes: []int{0, 1},
		},
		{
			name: "branch merge",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				// int x = 0; if (b) x = 1; return x;
				m.Code(testutil.NewCode().
					Op(iconst0).Op(istore2).
					Op(iload1).
					Jump(byte(classfile.IFEQ), "join").
					Op(iconst1).Op(istore2).
					Mark("join").Op(iload2).Op(ireturn))
			},
			// jump to the join, the join label, the return
			probes: []int{0, 1, 2},
		},
		{
			name: "loop",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				// for (int i = 0; i < 10; i++) {}
				m.Code(testutil.NewCode().
					Op(iconst0).Op(istore1).
					Mark("cond").Op(iload1).Op(bipush, 10).
					Jump(byte(classfile.IF_ICMPGE), "done").
					Op(byte(classfile.IINC), 1, 1).
					Jump(byte(classfile.GOTO), "cond").
					Mark("done").Op(opReturn))
			},
			// loop head label, back edge goto, return
			probes: []int{0, 1, 2},
		},
		{
			name: "invocation lines",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				foo := b.MethodRef("com/acme/A", "foo", "()V")
				bar := b.MethodRef("com/acme/A", "bar", "()V")
				m.Code(testutil.NewCode().
					Invoke(byte(classfile.INVOKESTATIC), foo).
					Invoke(byte(classfile.INVOKESTATIC), bar).
					Op(opReturn)).
					Line(0, 1).Line(3, 2)
			},
			// second line start, return
			probes: []int{0, 1},
		},
		{
			name: "invocations on one line",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				foo := b.MethodRef("com/acme/A", "foo", "()V")
				m.Code(testutil.NewCode().
					Invoke(byte(classfile.INVOKESTATIC), foo).
					Invoke(byte(classfile.INVOKESTATIC), foo).
					Op(opReturn)).
					Line(0, 1)
			},
			probes: []int{0},
		},
		{
			name: "try catch",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				foo := b.MethodRef("com/acme/A", "foo", "()V")
				code := testutil.NewCode().
					Mark("start").Invoke(byte(classfile.INVOKESTATIC), foo).
					Mark("end").Jump(byte(classfile.GOTO), "after").
					Mark("handler").Op(astore1).Invoke(byte(classfile.INVOKESTATIC), foo).
					Mark("after").Op(opReturn)
				m.Code(code).Handler(code.Pos("start"), code.Pos("end"), code.Pos("handler"), "java/lang/Exception")
			},
			// goto into the merge, the merge label, the return
			probes: []int{0, 1, 2},
		},
		{
			name: "tableswitch fall through",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				// switch (x) { case 1: y = 1; case 2: y = 2; }
				m.Code(testutil.NewCode().
					Op(iload1).
					TableSwitch("end", 1, "c1", "c2").
					Mark("c1").Op(iconst1).Op(istore2).
					Mark("c2").Op(iconst2).Op(istore2).
					Jump(byte(classfile.GOTO), "end").
					Mark("end").Op(opReturn))
			},
			// default, case 2 at the switch; case 2 label; goto; return
			probes: []int{0, 1, 2, 3, 4},
		},
		{
			name: "tableswitch distinct targets",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				m.Code(testutil.NewCode().
					Op(iload1).
					TableSwitch("d", 1, "a", "b", "a").
					Mark("a").Op(opReturn).
					Mark("b").Op(opReturn).
					Mark("d").Op(opReturn))
			},
			probes: []int{0, 1, 2},
		},
		{
			name: "lookupswitch default among cases",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				m.Code(testutil.NewCode().
					Op(iload1).
					LookupSwitch("d", []int32{1, 2}, []string{"a", "d"}).
					Mark("a").Op(iconst1).Op(istore2).
					Mark("d").Op(opReturn))
			},
			// default once at the switch, the fall-through label, return
			probes: []int{0, 1, 2},
		},
		{
			name: "goto_w",
			body: func(b *testutil.ClassBuilder, m *testutil.MethodBuilder) {
				m.Code(testutil.NewCode().
					Op(iload1).
					Jump(byte(classfile.IFEQ), "else").
					Op(iconst1).
					Jump(byte(classfile.GOTO_W), "join").
					Mark("else").Op(iconst2).
					Mark("join").Op(ireturn))
			},
			// goto_w to the join, the join label, the return
			probes: []int{0, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := singleMethod(t, tt.body)
			assert.Equal(t, tt.probes, cp.Methods[0].Probes)
			assert.Equal(t, len(tt.probes), cp.Total)
		})
	}
}

func TestMapClass_CounterSpansMethods(t *testing.T) {
	b := testutil.NewClassBuilder("com/acme/A")
	b.Method(testutil.AccPublic, "<init>", "()V").RawCode(opReturn)
	b.Method(testutil.AccPublic|testutil.AccAbstract, "compute", "()I")
	b.Method(testutil.AccPublic|testutil.AccNative, "peek", "()I")
	b.Method(testutil.AccPrivate|testutil.AccSynthetic, "lambda$run$0", "()V").RawCode(opReturn)
	b.Method(testutil.AccPublic, "toString", "()Ljava/lang/String;").Code(testutil.NewCode().
		Op(iload1).
		Jump(byte(classfile.IFEQ), "else").
		Op(0x01).Op(byte(classfile.ARETURN)).
		Mark("else").Op(0x01).Op(byte(classfile.ARETURN)))
	b.Method(testutil.AccPublic, "toString", "(I)Ljava/lang/String;").RawCode(0x01, byte(classfile.ARETURN))

	data := b.Bytes()
	cp, err := MapClass(data, AllMethods)
	require.NoError(t, err)

	assert.Equal(t, "com/acme/A", cp.Name)
	assert.Equal(t, execdata.ClassID(data), cp.ID)
	assert.Equal(t, 5, cp.Total)

	var got []MethodProbes
	for _, m := range cp.Methods {
		got = append(got, MethodProbes{Name: m.Name, Descriptor: m.Descriptor, Probes: m.Probes})
	}
	assert.Equal(t, []MethodProbes{
		{Name: "<init>", Descriptor: "()V", Probes: []int{0}},
		{Name: "compute", Descriptor: "()I"},
		{Name: "peek", Descriptor: "()I"},
		{Name: "lambda$run$0", Descriptor: "()V", Probes: []int{1}},
		{Name: "toString", Descriptor: "()Ljava/lang/String;", Probes: []int{2, 3}},
		{Name: "toString", Descriptor: "(I)Ljava/lang/String;", Probes: []int{4}},
	}, got)

	assert.Equal(t, []string{"<init>", "compute", "peek", "lambda$run$0", "toString"}, cp.MethodNames())
	assert.Equal(t, []int{2, 3, 4}, cp.ProbesFor(func(n string) bool { return n == "toString" }))
	assert.Empty(t, cp.ProbesFor(func(n string) bool { return n == "missing" }))
}

func TestMapClass_Recorder(t *testing.T) {
	b := testutil.NewClassBuilder("A")
	b.Method(testutil.AccPublic, "equals", "(Ljava/lang/Object;)Z").RawCode(iconst0, ireturn)
	b.Method(testutil.AccPublic, "hashCode", "()I").RawCode(iconst0, ireturn)

	cp, err := MapClass(b.Bytes(), ByName(func(n string) bool { return n == "hashCode" }))
	require.NoError(t, err)
	require.Len(t, cp.Methods, 1)
	assert.Equal(t, "hashCode", cp.Methods[0].Name)
	assert.Equal(t, []int{1}, cp.Methods[0].Probes)
	assert.Equal(t, 2, cp.Total)
}

func TestMapClass_Deterministic(t *testing.T) {
	b := testutil.NewClassBuilder("A")
	b.Method(testutil.AccPublic, "m", "()V").Code(testutil.NewCode().
		Op(iload1).
		TableSwitch("d", 0, "a", "d").
		Mark("a").Op(iconst1).Op(istore2).
		Mark("d").Op(opReturn))
	data := b.Bytes()

	first, err := MapClass(data, AllMethods)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := MapClass(data, AllMethods)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMapClass_Errors(t *testing.T) {
	t.Run("subroutine", func(t *testing.T) {
		b := testutil.NewClassBuilder("A")
		b.Method(testutil.AccPublic, "m", "()V").Code(testutil.NewCode().
			Jump(byte(classfile.JSR), "sub").
			Op(opReturn).
			Mark("sub").Op(astore1).Op(byte(classfile.RET), 1))
		_, err := MapClass(b.Bytes(), AllMethods)
		assert.ErrorIs(t, err, ErrSubroutine)
	})

	t.Run("instrumented", func(t *testing.T) {
		b := testutil.NewClassBuilder("A")
		b.Field(testutil.AccStatic, classfile.DataFieldName, "[Z")
		_, err := MapClass(b.Bytes(), AllMethods)
		assert.ErrorIs(t, err, ErrInstrumented)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := MapClass([]byte{0xCA, 0xFE}, AllMethods)
		assert.ErrorIs(t, err, classfile.ErrTruncated)
	})

	t.Run("invalid opcode", func(t *testing.T) {
		b := testutil.NewClassBuilder("A")
		b.Method(testutil.AccPublic, "m", "()V").RawCode(0xfe)
		_, err := MapClass(b.Bytes(), AllMethods)
		assert.ErrorIs(t, err, classfile.ErrInvalidOpcode)
	})
}

func TestEvents_Order(t *testing.T) {
	code := &classfile.Code{
		Bytecode:       []byte{0x00, opReturn},
		LineNumbers:    []classfile.LineNumber{{StartPC: 1, Line: 7}, {StartPC: 1, Line: 8}},
		LocalVariables: []classfile.LocalVariable{{StartPC: 0, Length: 2}},
	}

	events, err := Events(code)
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		got = append(got, ev.Kind.String())
	}
	assert.Equal(t, []string{"label", "insn", "label", "line", "line", "insn", "label"}, got)
	assert.Equal(t, 2, events[len(events)-1].Offset)
	assert.Equal(t, 8, events[4].Line)
}
