package abi

import (
	"math/big"

	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

const wordSize = 32

// wordCodec writes the word-aligned head/tail frame: every value gets
// one or more 32-byte big-endian head slots, dynamically-sized values
// store an offset to their tail instead. Tail offsets are relative to
// the start of the frame they belong to, so nested frames decode
// without knowing their absolute position.
type wordCodec struct {
	layout types.Layout
}

func (c *wordCodec) Encode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, args []cfg.Expression, packed bool) (cfg.Expression, cfg.Expression) {
	if packed {
		// No word alignment, no offset slots, no length words: packed
		// output is the sequential layout with nothing framing it.
		return (&sequentialCodec{layout: c.layout, prefix: rawPrefix{}}).Encode(ns, vt, graph, args, false)
	}

	tys := make([]types.Type, len(args))
	for i, arg := range args {
		tys[i] = types.Deref(arg.Ty())
	}

	size := cacheOffset(vt, graph, c.frameSize(vt, graph, args, tys))
	bufVar := vt.Temp("abi_encoded", types.DynamicBytes{})
	graph.Add(vt, &cfg.Set{Res: bufVar, Expr: &cfg.AllocDynamicBytes{
		Type: types.DynamicBytes{},
		Size: size,
	}})
	buffer := &cfg.Variable{Type: types.DynamicBytes{}, VarNo: bufVar}

	c.encodeFrame(vt, graph, buffer, cfg.Uint32(0), args, tys)
	return buffer, size
}

func (c *wordCodec) Decode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, bufferLen cfg.Expression, tys []types.Type, validator *BufferValidator) []cfg.Expression {
	if validator == nil {
		validator = NewBufferValidator(bufferLen, tys)
	}
	return c.decodeFrame(vt, graph, buffer, cfg.Uint32(0), tys, validator)
}

// headWords counts the 32-byte head slots a type occupies. Dynamic
// values occupy a single offset slot.
func headWords(ty types.Type) int64 {
	if types.IsDynamic(ty) {
		return 1
	}
	switch t := types.Deref(ty).(type) {
	case types.Struct:
		var words int64
		for _, field := range t.Decl.Fields {
			words += headWords(field.Ty)
		}
		return words
	case types.Array:
		count := int64(1)
		for _, dim := range t.Dims {
			count *= dim.(types.FixedLength).N.Int64()
		}
		return count * headWords(t.Elem)
	default:
		return 1
	}
}

// frameSize computes the byte size of the frame encoding values: the
// head plus every tail.
func (c *wordCodec) frameSize(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, values []cfg.Expression, tys []types.Type) cfg.Expression {
	var head int64
	var size cfg.Expression = cfg.Uint32(0)
	for i, ty := range tys {
		head += headWords(ty) * wordSize
		if types.IsDynamic(ty) {
			size = cfg.AddU32(size, c.tailSize(vt, graph, values[i], ty))
		}
	}
	return cfg.AddU32(cfg.Uint32(head), size)
}

// tailSize computes the tail byte count of one dynamic value.
func (c *wordCodec) tailSize(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, value cfg.Expression, ty types.Type) cfg.Expression {
	switch t := types.Deref(ty).(type) {
	case types.String, types.DynamicBytes:
		length := vt.Temp("len", types.Uint{Bits: 32})
		graph.Add(vt, &cfg.Set{Res: length, Expr: arrayLength(value)})
		return cfg.AddU32(cfg.Uint32(wordSize),
			ceilWord(&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: length}))

	case types.Struct:
		// Dynamic structs carry a nested frame in their tail.
		fields := make([]cfg.Expression, len(t.Decl.Fields))
		tys := make([]types.Type, len(t.Decl.Fields))
		for i, field := range t.Decl.Fields {
			fields[i] = fieldValue(value, i, field.Ty)
			tys[i] = field.Ty
		}
		return c.frameSize(vt, graph, fields, tys)

	case types.Array:
		return c.vectorTailSize(vt, graph, value, t.Elem)

	case types.Slice:
		return c.vectorTailSize(vt, graph, value, t.Elem)
	}
	return cfg.Uint32(0)
}

func (c *wordCodec) vectorTailSize(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, value cfg.Expression, elem types.Type) cfg.Expression {
	length := vt.Temp("len", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: length, Expr: arrayLength(value)})
	count := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: length}

	perElem := cfg.MulU32(count, cfg.Uint32(headWords(elem)*wordSize))
	if !types.IsDynamic(elem) {
		return cfg.AddU32(cfg.Uint32(wordSize), perElem)
	}

	sumVar := vt.Temp("size_sum", types.Uint{Bits: 32})
	sum := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: sumVar}
	graph.Add(vt, &cfg.Set{Res: sumVar, Expr: cfg.AddU32(cfg.Uint32(wordSize), perElem)})
	forLoop(vt, graph, count, func(index cfg.Expression) {
		elemSize := c.tailSize(vt, graph, elemValue(value, index, elem), elem)
		graph.Add(vt, &cfg.Set{Res: sumVar, Expr: cfg.AddU32(sum, elemSize)})
	})
	return sum
}

// encodeFrame writes values as one frame starting at base and returns
// the frame's byte count.
func (c *wordCodec) encodeFrame(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, base cfg.Expression, values []cfg.Expression, tys []types.Type) cfg.Expression {
	var head int64
	for _, ty := range tys {
		head += headWords(ty) * wordSize
	}

	tailVar := vt.Temp("tail_offset", types.Uint{Bits: 32})
	tail := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: tailVar}
	graph.Add(vt, &cfg.Set{Res: tailVar, Expr: cfg.AddU32(base, cfg.Uint32(head))})

	headOffset := base
	for i, ty := range tys {
		if types.IsDynamic(ty) {
			// The head slot stores the tail's offset relative to the
			// frame start.
			graph.Add(vt, &cfg.WriteBuffer{
				Buf:    buffer,
				Offset: cfg.AddU32(headOffset, cfg.Uint32(wordSize-4)),
				Value:  cfg.SubU32(tail, base),
			})
			tailBytes := c.encodeTail(vt, graph, buffer, tail, values[i], ty)
			graph.Add(vt, &cfg.Set{Res: tailVar, Expr: cfg.AddU32(tail, tailBytes)})
			headOffset = cacheOffset(vt, graph, cfg.AddU32(headOffset, cfg.Uint32(wordSize)))
			continue
		}
		c.encodeStatic(vt, graph, buffer, headOffset, values[i], ty)
		headOffset = cacheOffset(vt, graph, cfg.AddU32(headOffset, cfg.Uint32(headWords(ty)*wordSize)))
	}
	return cfg.SubU32(tail, base)
}

// encodeStatic writes a fixed-size value into its head slots. Numbers
// sit right-aligned in their word, fixed byte arrays left-aligned; the
// allocation is zeroed so the rest of the word needs no writes.
func (c *wordCodec) encodeStatic(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, value cfg.Expression, ty types.Type) {
	switch t := types.Deref(ty).(type) {
	case types.Bytes:
		graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: value})

	case types.Struct:
		fieldOffset := offset
		for i, field := range t.Decl.Fields {
			c.encodeStatic(vt, graph, buffer, fieldOffset, fieldValue(value, i, field.Ty), field.Ty)
			fieldOffset = cfg.AddU32(fieldOffset, cfg.Uint32(headWords(field.Ty)*wordSize))
		}

	case types.Array:
		_, count := fixedElemCount(t)
		elemWords := headWords(t.Elem) * wordSize
		forLoop(vt, graph, cfg.Uint32(count), func(index cfg.Expression) {
			elemOffset := cfg.AddU32(offset, cfg.MulU32(index, cfg.Uint32(elemWords)))
			c.encodeStatic(vt, graph, buffer, elemOffset, elemValue(value, index, t.Elem), t.Elem)
		})

	default:
		size := scalarSize(types.Deref(ty), c.layout)
		graph.Add(vt, &cfg.WriteBuffer{
			Buf:    buffer,
			Offset: cfg.AddU32(offset, cfg.Uint32(wordSize-size)),
			Value:  value,
		})
	}
}

// encodeTail writes a dynamic value's tail at offset and returns its
// byte count.
func (c *wordCodec) encodeTail(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, value cfg.Expression, ty types.Type) cfg.Expression {
	switch t := types.Deref(ty).(type) {
	case types.String, types.DynamicBytes:
		lengthVar := vt.Temp("len", types.Uint{Bits: 32})
		graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: arrayLength(value)})
		length := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: lengthVar}
		graph.Add(vt, &cfg.WriteBuffer{
			Buf:    buffer,
			Offset: cfg.AddU32(offset, cfg.Uint32(wordSize-4)),
			Value:  length,
		})
		graph.Add(vt, &cfg.MemCopy{
			Source:      value,
			Destination: &cfg.AdvancePointer{Pointer: buffer, BytesOffset: cfg.AddU32(offset, cfg.Uint32(wordSize))},
			Bytes:       length,
		})
		return cfg.AddU32(cfg.Uint32(wordSize), ceilWord(length))

	case types.Struct:
		fields := make([]cfg.Expression, len(t.Decl.Fields))
		tys := make([]types.Type, len(t.Decl.Fields))
		for i, field := range t.Decl.Fields {
			fields[i] = fieldValue(value, i, field.Ty)
			tys[i] = field.Ty
		}
		return c.encodeFrame(vt, graph, buffer, offset, fields, tys)

	case types.Array:
		return c.encodeVectorTail(vt, graph, buffer, offset, value, t.Elem)

	case types.Slice:
		return c.encodeVectorTail(vt, graph, buffer, offset, value, t.Elem)
	}
	return cfg.Uint32(0)
}

// encodeVectorTail writes a length word followed by an element frame.
func (c *wordCodec) encodeVectorTail(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, value cfg.Expression, elem types.Type) cfg.Expression {
	lengthVar := vt.Temp("len", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: arrayLength(value)})
	length := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: lengthVar}
	graph.Add(vt, &cfg.WriteBuffer{
		Buf:    buffer,
		Offset: cfg.AddU32(offset, cfg.Uint32(wordSize-4)),
		Value:  length,
	})

	frameBase := cacheOffset(vt, graph, cfg.AddU32(offset, cfg.Uint32(wordSize)))
	elemWords := headWords(elem) * wordSize

	if !types.IsDynamic(elem) {
		forLoop(vt, graph, length, func(index cfg.Expression) {
			elemOffset := cfg.AddU32(frameBase, cfg.MulU32(index, cfg.Uint32(elemWords)))
			c.encodeStatic(vt, graph, buffer, elemOffset, elemValue(value, index, elem), elem)
		})
		return cfg.AddU32(cfg.Uint32(wordSize), cfg.MulU32(length, cfg.Uint32(elemWords)))
	}

	// Dynamic elements: one offset word each, tails packed after the
	// offset words. Offsets are relative to the element frame.
	tailVar := vt.Temp("tail_offset", types.Uint{Bits: 32})
	tail := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: tailVar}
	graph.Add(vt, &cfg.Set{Res: tailVar, Expr: cfg.AddU32(frameBase, cfg.MulU32(length, cfg.Uint32(wordSize)))})
	forLoop(vt, graph, length, func(index cfg.Expression) {
		slot := cfg.AddU32(frameBase, cfg.MulU32(index, cfg.Uint32(wordSize)))
		graph.Add(vt, &cfg.WriteBuffer{
			Buf:    buffer,
			Offset: cfg.AddU32(slot, cfg.Uint32(wordSize-4)),
			Value:  cfg.SubU32(tail, frameBase),
		})
		tailBytes := c.encodeTail(vt, graph, buffer, tail, elemValue(value, index, elem), elem)
		graph.Add(vt, &cfg.Set{Res: tailVar, Expr: cfg.AddU32(tail, tailBytes)})
	})
	return cfg.SubU32(tail, offset)
}

// decodeFrame reads one value per type out of the frame at base.
func (c *wordCodec) decodeFrame(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, base cfg.Expression, tys []types.Type, validator *BufferValidator) []cfg.Expression {
	values := make([]cfg.Expression, 0, len(tys))
	headOffset := base
	for _, ty := range tys {
		if types.IsDynamic(ty) {
			validator.ValidateOffsetPlusSize(vt, graph, headOffset, cfg.Uint32(wordSize))
			pointer := c.readWordU32(vt, graph, buffer, headOffset)
			tailOffset := cacheOffset(vt, graph, cfg.AddU32(base, pointer))
			values = append(values, c.decodeTail(vt, graph, buffer, tailOffset, ty, validator))
			headOffset = cacheOffset(vt, graph, cfg.AddU32(headOffset, cfg.Uint32(wordSize)))
			continue
		}
		words := headWords(ty) * wordSize
		validator.ValidateOffsetPlusSize(vt, graph, headOffset, cfg.Uint32(words))
		values = append(values, c.decodeStatic(vt, graph, buffer, headOffset, ty))
		headOffset = cacheOffset(vt, graph, cfg.AddU32(headOffset, cfg.Uint32(words)))
	}
	return values
}

// decodeStatic reads a fixed-size value from its head slots; bounds
// were checked by the caller.
func (c *wordCodec) decodeStatic(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, ty types.Type) cfg.Expression {
	ty = types.Deref(ty)
	switch t := ty.(type) {
	case types.Bytes:
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.Builtin{
			Type: ty,
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, offset},
		}})
		return &cfg.Variable{Type: ty, VarNo: tmp}

	case types.Struct:
		values := make([]cfg.Expression, 0, len(t.Decl.Fields))
		fieldOffset := offset
		for _, field := range t.Decl.Fields {
			values = append(values, c.decodeStatic(vt, graph, buffer, fieldOffset, field.Ty))
			fieldOffset = cfg.AddU32(fieldOffset, cfg.Uint32(headWords(field.Ty)*wordSize))
		}
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.StructLiteral{Type: ty, Values: values}})
		return &cfg.Variable{Type: ty, VarNo: tmp}

	case types.Array:
		_, count := fixedElemCount(t)
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{Type: ty, Size: cfg.Uint32(count)}})
		array := &cfg.Variable{Type: ty, VarNo: tmp}
		elemWords := headWords(t.Elem) * wordSize
		forLoop(vt, graph, cfg.Uint32(count), func(index cfg.Expression) {
			elemOffset := cfg.AddU32(offset, cfg.MulU32(index, cfg.Uint32(elemWords)))
			graph.Add(vt, &cfg.Store{
				Dest: &cfg.Subscript{Type: types.Ref{To: t.Elem}, Array: array, Index: index},
				Data: c.decodeStatic(vt, graph, buffer, elemOffset, t.Elem),
			})
		})
		return array

	default:
		size := scalarSize(ty, c.layout)
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.Builtin{
			Type: ty,
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, cfg.AddU32(offset, cfg.Uint32(wordSize-size))},
		}})
		return &cfg.Variable{Type: ty, VarNo: tmp}
	}
}

// decodeTail reads a dynamic value's tail at offset.
func (c *wordCodec) decodeTail(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, ty types.Type, validator *BufferValidator) cfg.Expression {
	ty = types.Deref(ty)
	switch t := ty.(type) {
	case types.String, types.DynamicBytes:
		validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(wordSize))
		length := c.readWordU32(vt, graph, buffer, offset)
		content := cacheOffset(vt, graph, cfg.AddU32(offset, cfg.Uint32(wordSize)))
		validator.ValidateOffsetPlusSize(vt, graph, content, length)
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{Type: ty, Size: length}})
		value := &cfg.Variable{Type: ty, VarNo: tmp}
		graph.Add(vt, &cfg.MemCopy{
			Source:      &cfg.AdvancePointer{Pointer: buffer, BytesOffset: content},
			Destination: value,
			Bytes:       length,
		})
		return value

	case types.Struct:
		tys := make([]types.Type, len(t.Decl.Fields))
		for i, field := range t.Decl.Fields {
			tys[i] = field.Ty
		}
		values := c.decodeFrame(vt, graph, buffer, offset, tys, validator)
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.StructLiteral{Type: ty, Values: values}})
		return &cfg.Variable{Type: ty, VarNo: tmp}

	case types.Array:
		return c.decodeVectorTail(vt, graph, buffer, offset, ty, t.Elem, validator)

	case types.Slice:
		return c.decodeVectorTail(vt, graph, buffer, offset, ty, t.Elem, validator)
	}

	graph.Add(vt, &cfg.Unimplemented{Reachable: true})
	return &cfg.NumberLiteral{Type: types.Uint{Bits: 32}, Value: big.NewInt(0)}
}

func (c *wordCodec) decodeVectorTail(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, arrayTy, elem types.Type, validator *BufferValidator) cfg.Expression {
	validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(wordSize))
	length := c.readWordU32(vt, graph, buffer, offset)
	frameBase := cacheOffset(vt, graph, cfg.AddU32(offset, cfg.Uint32(wordSize)))

	tmp := vt.TempAnonymous(arrayTy)
	graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{Type: arrayTy, Size: length}})
	array := &cfg.Variable{Type: arrayTy, VarNo: tmp}

	elemWords := headWords(elem) * wordSize
	validator.ValidateOffsetPlusSize(vt, graph, frameBase, cfg.MulU32(length, cfg.Uint32(elemWords)))

	forLoop(vt, graph, length, func(index cfg.Expression) {
		slot := cfg.AddU32(frameBase, cfg.MulU32(index, cfg.Uint32(elemWords)))
		var value cfg.Expression
		if types.IsDynamic(elem) {
			pointer := c.readWordU32(vt, graph, buffer, slot)
			value = c.decodeTail(vt, graph, buffer, cfg.AddU32(frameBase, pointer), elem, validator)
		} else {
			value = c.decodeStatic(vt, graph, buffer, slot, elem)
		}
		graph.Add(vt, &cfg.Store{
			Dest: &cfg.Subscript{Type: types.Ref{To: elem}, Array: array, Index: index},
			Data: value,
		})
	})
	return array
}

// readWordU32 reads the low four bytes of a word, where this codec
// keeps lengths and offsets.
func (c *wordCodec) readWordU32(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression) cfg.Expression {
	tmp := vt.Temp("word", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.Builtin{
		Type: types.Uint{Bits: 32},
		Kind: cfg.BuiltinReadFromBuffer,
		Args: []cfg.Expression{buffer, cfg.AddU32(offset, cfg.Uint32(wordSize-4))},
	}})
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: tmp}
}

// ceilWord rounds a byte count up to the next word boundary.
func ceilWord(length cfg.Expression) cfg.Expression {
	return &cfg.Binary{
		Type:  types.Uint{Bits: 32},
		Op:    cfg.OpBitAnd,
		Left:  cfg.AddU32(length, cfg.Uint32(wordSize-1)),
		Right: cfg.Number(types.Uint{Bits: 32}, big.NewInt(0xFFFFFFE0)),
	}
}
