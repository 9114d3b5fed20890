package abi

import (
	"math/big"

	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

// lengthPrefix abstracts how a packed encoding frames collection
// lengths; it is the only place the scale and borsh codecs differ.
type lengthPrefix interface {
	// write emits the prefix for length into buffer at offset and
	// returns how many bytes it occupied.
	write(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, length cfg.Expression) cfg.Expression

	// read parses a prefix at offset, validating its own reads, and
	// returns the decoded length and the prefix size.
	read(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, validator *BufferValidator) (length, size cfg.Expression)

	// sizeOf returns the prefix byte count needed to frame length,
	// for allocation size precomputation.
	sizeOf(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, length cfg.Expression) cfg.Expression
}

// rawPrefix frames nothing: packed encoding splices dynamic contents
// straight into the stream. Packed buffers are never decoded, so read
// marks the graph unimplemented instead of guessing a length.
type rawPrefix struct{}

func (rawPrefix) write(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, length cfg.Expression) cfg.Expression {
	return cfg.Uint32(0)
}

func (rawPrefix) read(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, validator *BufferValidator) (cfg.Expression, cfg.Expression) {
	graph.Add(vt, &cfg.Unimplemented{Reachable: true})
	return cfg.Uint32(0), cfg.Uint32(0)
}

func (rawPrefix) sizeOf(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, length cfg.Expression) cfg.Expression {
	return cfg.Uint32(0)
}

// sequentialCodec writes values back to back with no padding, in
// declaration order. Collection lengths are framed by the prefix
// scheme; everything else is position-implicit.
type sequentialCodec struct {
	layout types.Layout
	prefix lengthPrefix

	// strict decoders reject buffers with trailing bytes after the
	// last argument.
	strict bool
}

func (c *sequentialCodec) Encode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, args []cfg.Expression, packed bool) (cfg.Expression, cfg.Expression) {
	enc := c
	if packed {
		cp := *c
		cp.prefix = rawPrefix{}
		enc = &cp
	}

	size := enc.sizeOfArgs(vt, graph, args)

	bufVar := vt.Temp("abi_encoded", types.DynamicBytes{})
	graph.Add(vt, &cfg.Set{Res: bufVar, Expr: &cfg.AllocDynamicBytes{
		Type: types.DynamicBytes{},
		Size: size,
	}})
	buffer := &cfg.Variable{Type: types.DynamicBytes{}, VarNo: bufVar}

	var offset cfg.Expression = cfg.Uint32(0)
	for _, arg := range args {
		advance := enc.encode(vt, graph, arg, buffer, offset)
		offset = cacheOffset(vt, graph, cfg.AddU32(offset, advance))
	}
	return buffer, size
}

func (c *sequentialCodec) Decode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, bufferLen cfg.Expression, tys []types.Type, validator *BufferValidator) []cfg.Expression {
	if validator == nil {
		validator = NewBufferValidator(bufferLen, tys)
	}
	var offset cfg.Expression = cfg.Uint32(0)
	validator.InitializeValidation(ns, vt, graph, offset)

	values := make([]cfg.Expression, 0, len(tys))
	for i, ty := range tys {
		validator.SetArgumentNumber(i)
		value, advance := c.decode(vt, graph, buffer, offset, ty, validator)
		values = append(values, value)
		offset = cacheOffset(vt, graph, cfg.AddU32(offset, advance))
	}
	if c.strict && len(tys) > 0 {
		validator.ValidateAll(vt, graph, offset)
	}
	return values
}

// sizeOfArgs sums the encoded size of every argument.
func (c *sequentialCodec) sizeOfArgs(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, args []cfg.Expression) cfg.Expression {
	var size cfg.Expression = cfg.Uint32(0)
	for _, arg := range args {
		size = cfg.AddU32(size, c.sizeOf(vt, graph, arg))
	}
	return cacheOffset(vt, graph, size)
}

// sizeOf computes the encoded byte size of one value. Fixed-size
// types fold to a constant; collections produce runtime length math.
func (c *sequentialCodec) sizeOf(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, expr cfg.Expression) cfg.Expression {
	ty := types.Deref(expr.Ty())
	if fixed := types.MemorySize(ty, c.layout); fixed != nil && !hasPadding(ty) {
		return cfg.Uint32(fixed.Int64())
	}

	switch t := ty.(type) {
	case types.String, types.DynamicBytes:
		length := c.lengthTemp(vt, graph, expr)
		return cfg.AddU32(c.prefix.sizeOf(vt, graph, length), length)

	case types.Struct:
		var size cfg.Expression = cfg.Uint32(0)
		for i, field := range t.Decl.Fields {
			size = cfg.AddU32(size, c.sizeOf(vt, graph, fieldValue(expr, i, field.Ty)))
		}
		return size

	case types.Array:
		if fixed, n := fixedElemCount(t); fixed {
			return c.sizeOfElems(vt, graph, expr, t.Elem, cfg.Uint32(n))
		}
		length := c.lengthTemp(vt, graph, expr)
		return cfg.AddU32(c.prefix.sizeOf(vt, graph, length),
			c.sizeOfElems(vt, graph, expr, t.Elem, length))

	case types.Slice:
		length := c.lengthTemp(vt, graph, expr)
		return cfg.AddU32(c.prefix.sizeOf(vt, graph, length),
			c.sizeOfElems(vt, graph, expr, t.Elem, length))

	case types.ExternalFunction:
		return cfg.Uint32(int64(c.layout.AddressLength + c.layout.SelectorLength))
	}
	return cfg.Uint32(0)
}

// sizeOfElems sizes count array elements, multiplying when elements
// have fixed size and summing in a loop otherwise.
func (c *sequentialCodec) sizeOfElems(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, array cfg.Expression, elem types.Type, count cfg.Expression) cfg.Expression {
	if fixed := types.MemorySize(elem, c.layout); fixed != nil && !hasPadding(elem) {
		return cfg.MulU32(count, cfg.Uint32(fixed.Int64()))
	}
	sumVar := vt.Temp("size_sum", types.Uint{Bits: 32})
	sum := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: sumVar}
	graph.Add(vt, &cfg.Set{Res: sumVar, Expr: cfg.Uint32(0)})
	forLoop(vt, graph, count, func(index cfg.Expression) {
		elemSize := c.sizeOf(vt, graph, elemValue(array, index, elem))
		graph.Add(vt, &cfg.Set{Res: sumVar, Expr: cfg.AddU32(sum, elemSize)})
	})
	return sum
}

// encode writes one value at offset and returns how many bytes it
// occupied.
func (c *sequentialCodec) encode(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, expr, buffer, offset cfg.Expression) cfg.Expression {
	ty := types.Deref(expr.Ty())

	if types.IsPrimitive(ty) {
		graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: expr})
		return cfg.Uint32(scalarSize(ty, c.layout))
	}

	switch t := ty.(type) {
	case types.String, types.DynamicBytes:
		length := c.lengthTemp(vt, graph, expr)
		prefixSize := c.prefix.write(vt, graph, buffer, offset, length)
		graph.Add(vt, &cfg.MemCopy{
			Source:      expr,
			Destination: &cfg.AdvancePointer{Pointer: buffer, BytesOffset: cfg.AddU32(offset, prefixSize)},
			Bytes:       length,
		})
		return cfg.AddU32(prefixSize, length)

	case types.Struct:
		// A struct without internal padding has the same layout in
		// memory and in the buffer, so one copy does the whole thing.
		if fixed := types.MemorySize(ty, c.layout); fixed != nil && !hasPadding(ty) {
			graph.Add(vt, &cfg.MemCopy{
				Source:      expr,
				Destination: &cfg.AdvancePointer{Pointer: buffer, BytesOffset: offset},
				Bytes:       cfg.Uint32(fixed.Int64()),
			})
			return cfg.Uint32(fixed.Int64())
		}
		fieldOffset := offset
		for i, field := range t.Decl.Fields {
			advance := c.encode(vt, graph, fieldValue(expr, i, field.Ty), buffer, fieldOffset)
			fieldOffset = cacheOffset(vt, graph, cfg.AddU32(fieldOffset, advance))
		}
		return cfg.SubU32(fieldOffset, offset)

	case types.Array:
		if fixed, n := fixedElemCount(t); fixed {
			return c.encodeElems(vt, graph, expr, t.Elem, cfg.Uint32(n), buffer, offset)
		}
		return c.encodeVector(vt, graph, expr, t.Elem, buffer, offset)

	case types.Slice:
		return c.encodeVector(vt, graph, expr, t.Elem, buffer, offset)

	case types.ExternalFunction:
		address := &cfg.Builtin{Type: types.Address{}, Kind: cfg.BuiltinExternalFunctionAddress, Args: []cfg.Expression{expr}}
		selector := &cfg.Builtin{Type: types.FunctionSelector{}, Kind: cfg.BuiltinExternalFunctionSelector, Args: []cfg.Expression{expr}}
		graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: address})
		graph.Add(vt, &cfg.WriteBuffer{
			Buf:    buffer,
			Offset: cfg.AddU32(offset, cfg.Uint32(int64(c.layout.AddressLength))),
			Value:  selector,
		})
		return cfg.Uint32(int64(c.layout.AddressLength + c.layout.SelectorLength))
	}

	graph.Add(vt, &cfg.Unimplemented{Reachable: true})
	return cfg.Uint32(0)
}

// encodeVector writes a length prefix followed by the elements.
func (c *sequentialCodec) encodeVector(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, array cfg.Expression, elem types.Type, buffer, offset cfg.Expression) cfg.Expression {
	length := c.lengthTemp(vt, graph, array)
	prefixSize := c.prefix.write(vt, graph, buffer, offset, length)
	elemBytes := c.encodeElems(vt, graph, array, elem, length, buffer, cfg.AddU32(offset, prefixSize))
	return cfg.AddU32(prefixSize, elemBytes)
}

// encodeElems writes count elements starting at offset. Fixed-size
// element runs without padding are one copy; everything else loops.
func (c *sequentialCodec) encodeElems(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, array cfg.Expression, elem types.Type, count, buffer, offset cfg.Expression) cfg.Expression {
	if fixed := types.MemorySize(elem, c.layout); fixed != nil && !hasPadding(elem) {
		bytes := cfg.MulU32(count, cfg.Uint32(fixed.Int64()))
		graph.Add(vt, &cfg.MemCopy{
			Source:      array,
			Destination: &cfg.AdvancePointer{Pointer: buffer, BytesOffset: offset},
			Bytes:       bytes,
		})
		return bytes
	}

	cursorVar := vt.Temp("offset", types.Uint{Bits: 32})
	cursor := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: cursorVar}
	graph.Add(vt, &cfg.Set{Res: cursorVar, Expr: offset})
	forLoop(vt, graph, count, func(index cfg.Expression) {
		advance := c.encode(vt, graph, elemValue(array, index, elem), buffer, cursor)
		graph.Add(vt, &cfg.Set{Res: cursorVar, Expr: cfg.AddU32(cursor, advance)})
	})
	return cfg.SubU32(cursor, offset)
}

// decode reads one value of ty at offset and returns it with its
// encoded size.
func (c *sequentialCodec) decode(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, ty types.Type, validator *BufferValidator) (cfg.Expression, cfg.Expression) {
	ty = types.Deref(ty)

	if types.IsPrimitive(ty) {
		size := scalarSize(ty, c.layout)
		validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(size))
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.Builtin{
			Type: ty,
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, offset},
		}})
		return &cfg.Variable{Type: ty, VarNo: tmp}, cfg.Uint32(size)
	}

	switch t := ty.(type) {
	case types.String, types.DynamicBytes:
		length, prefixSize := c.prefix.read(vt, graph, buffer, offset, validator)
		content := cfg.AddU32(offset, prefixSize)
		validator.ValidateOffsetPlusSize(vt, graph, content, length)
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{Type: ty, Size: length}})
		value := &cfg.Variable{Type: ty, VarNo: tmp}
		graph.Add(vt, &cfg.MemCopy{
			Source:      &cfg.AdvancePointer{Pointer: buffer, BytesOffset: content},
			Destination: value,
			Bytes:       length,
		})
		return value, cfg.AddU32(prefixSize, length)

	case types.Struct:
		values := make([]cfg.Expression, 0, len(t.Decl.Fields))
		fieldOffset := offset
		for _, field := range t.Decl.Fields {
			value, advance := c.decode(vt, graph, buffer, fieldOffset, field.Ty, validator)
			values = append(values, value)
			fieldOffset = cacheOffset(vt, graph, cfg.AddU32(fieldOffset, advance))
		}
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.StructLiteral{Type: ty, Values: values}})
		return &cfg.Variable{Type: ty, VarNo: tmp}, cfg.SubU32(fieldOffset, offset)

	case types.Array:
		if fixed, n := fixedElemCount(t); fixed {
			return c.decodeElems(vt, graph, buffer, offset, ty, t.Elem, cfg.Uint32(n), validator)
		}
		length, prefixSize := c.prefix.read(vt, graph, buffer, offset, validator)
		value, elemBytes := c.decodeElems(vt, graph, buffer, cfg.AddU32(offset, prefixSize), ty, t.Elem, length, validator)
		return value, cfg.AddU32(prefixSize, elemBytes)

	case types.Slice:
		length, prefixSize := c.prefix.read(vt, graph, buffer, offset, validator)
		value, elemBytes := c.decodeElems(vt, graph, buffer, cfg.AddU32(offset, prefixSize), ty, t.Elem, length, validator)
		return value, cfg.AddU32(prefixSize, elemBytes)

	case types.ExternalFunction:
		span := int64(c.layout.AddressLength + c.layout.SelectorLength)
		validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(span))
		address := vt.TempAnonymous(types.Address{})
		graph.Add(vt, &cfg.Set{Res: address, Expr: &cfg.Builtin{
			Type: types.Address{},
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, offset},
		}})
		selector := vt.TempAnonymous(types.FunctionSelector{})
		graph.Add(vt, &cfg.Set{Res: selector, Expr: &cfg.Builtin{
			Type: types.FunctionSelector{},
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, cfg.AddU32(offset, cfg.Uint32(int64(c.layout.AddressLength)))},
		}})
		tmp := vt.TempAnonymous(ty)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.StructLiteral{Type: ty, Values: []cfg.Expression{
			&cfg.Variable{Type: types.Address{}, VarNo: address},
			&cfg.Variable{Type: types.FunctionSelector{}, VarNo: selector},
		}}})
		return &cfg.Variable{Type: ty, VarNo: tmp}, cfg.Uint32(span)
	}

	graph.Add(vt, &cfg.Unimplemented{Reachable: true})
	return &cfg.NumberLiteral{Type: types.Uint{Bits: 32}, Value: big.NewInt(0)}, cfg.Uint32(0)
}

// decodeElems reads count elements into a fresh array value.
func (c *sequentialCodec) decodeElems(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, arrayTy, elem types.Type, count cfg.Expression, validator *BufferValidator) (cfg.Expression, cfg.Expression) {
	tmp := vt.TempAnonymous(arrayTy)
	graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{Type: arrayTy, Size: count}})
	array := &cfg.Variable{Type: arrayTy, VarNo: tmp}

	if fixed := types.MemorySize(elem, c.layout); fixed != nil && !hasPadding(elem) {
		bytes := cacheOffset(vt, graph, cfg.MulU32(count, cfg.Uint32(fixed.Int64())))
		validator.ValidateOffsetPlusSize(vt, graph, offset, bytes)
		graph.Add(vt, &cfg.MemCopy{
			Source:      &cfg.AdvancePointer{Pointer: buffer, BytesOffset: offset},
			Destination: array,
			Bytes:       bytes,
		})
		return array, bytes
	}

	cursorVar := vt.Temp("offset", types.Uint{Bits: 32})
	cursor := &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: cursorVar}
	graph.Add(vt, &cfg.Set{Res: cursorVar, Expr: offset})
	forLoop(vt, graph, count, func(index cfg.Expression) {
		value, advance := c.decode(vt, graph, buffer, cursor, elem, validator)
		graph.Add(vt, &cfg.Store{
			Dest: &cfg.Subscript{Type: types.Ref{To: elem}, Array: array, Index: index},
			Data: value,
		})
		graph.Add(vt, &cfg.Set{Res: cursorVar, Expr: cfg.AddU32(cursor, advance)})
	})
	return array, cfg.SubU32(cursor, offset)
}

// lengthTemp spills a vector's length into a temporary.
func (c *sequentialCodec) lengthTemp(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, array cfg.Expression) cfg.Expression {
	tmp := vt.Temp("len", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: tmp, Expr: arrayLength(array)})
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: tmp}
}

// fieldValue loads field member of a struct value.
func fieldValue(expr cfg.Expression, member int, ty types.Type) cfg.Expression {
	access := &cfg.StructMember{Type: types.Ref{To: ty}, Expr: expr, Member: member}
	return &cfg.Load{Type: ty, Expr: access}
}

// elemValue loads element index of an array value.
func elemValue(array, index cfg.Expression, elem types.Type) cfg.Expression {
	return &cfg.Load{Type: elem, Expr: &cfg.Subscript{Type: types.Ref{To: elem}, Array: array, Index: index}}
}

// fixedElemCount reports whether every dimension of an array is fixed
// and the total element count.
func fixedElemCount(t types.Array) (bool, int64) {
	count := int64(1)
	for _, dim := range t.Dims {
		fixed, ok := dim.(types.FixedLength)
		if !ok {
			return false, 0
		}
		count *= fixed.N.Int64()
	}
	return true, count
}

// hasPadding reports whether a type's in-memory layout differs from
// its packed encoding, which forbids direct copies.
func hasPadding(ty types.Type) bool {
	switch t := ty.(type) {
	case types.Struct:
		for _, field := range t.Decl.Fields {
			if hasPadding(field.Ty) || types.IsDynamic(field.Ty) {
				return true
			}
		}
		// Mixed field widths leave alignment gaps in memory.
		return structPadded(t.Decl)
	case types.Array:
		return hasPadding(t.Elem)
	}
	return false
}

func structPadded(decl *types.StructDecl) bool {
	for _, field := range decl.Fields {
		if bits := types.Bits(field.Ty); bits != 0 && bits%8 != 0 {
			return true
		}
		if _, ok := field.Ty.(types.Bool); ok {
			return true
		}
	}
	return false
}
