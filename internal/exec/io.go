package exec

import (
	"bufio"
	"io"
	"os"
	"strings"

	derrors "der/internal/errors"
	"der/internal/graph"

	"der/internal/bytecode"
)

func (ex *Executor) evalAsyncComplete(n *bytecode.Node) (Value, error) {
	tok, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "AsyncToken", tok, isAsyncTok); err != nil {
		return vNil(), err
	}
	val, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := ex.async.Complete(n.ResultID, tok.CellID, val); err != nil {
		return vNil(), err
	}
	return vNil(), nil
}

func (ex *Executor) evalAsyncAwait(n *bytecode.Node) (Value, error) {
	tok, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "AsyncToken", tok, isAsyncTok); err != nil {
		return vNil(), err
	}
	return ex.async.Await(n.ResultID, tok.CellID)
}

// evalPrint implements Print(value), gated on the UI capability.
func (ex *Executor) evalPrint(n *bytecode.Node) (Value, error) {
	if err := ex.requireCapability(n.Opcode, n.ResultID, graph.UI); err != nil {
		return vNil(), err
	}
	v, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if _, err := io.WriteString(ex.Stdout, ToString(v)+"\n"); err != nil {
		return vNil(), derrors.New(derrors.IOError, err.Error()).WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return v, nil
}

// evalRead implements Read(), gated on the UI capability. It returns one
// line from stdin with the trailing newline stripped, or Nil at EOF.
func (ex *Executor) evalRead(n *bytecode.Node) (Value, error) {
	if err := ex.requireCapability(n.Opcode, n.ResultID, graph.UI); err != nil {
		return vNil(), err
	}
	line, err := ex.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return vNil(), derrors.New(derrors.IOError, err.Error()).WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	if line == "" && err == io.EOF {
		return vNil(), nil
	}
	return vString(strings.TrimRight(line, "\r\n")), nil
}

// evalFileOpen implements FileOpen(path), gated on the FileSystem
// capability. The handle is modeled as a plain Int indexing the
// executor's own file table, the same small-arena shape as asyncTable,
// rather than as a refcounted heap cell — heap cells are scoped to
// Bytes/Array/Map only.
func (ex *Executor) evalFileOpen(n *bytecode.Node) (Value, error) {
	if err := ex.requireCapability(n.Opcode, n.ResultID, graph.FileSystem); err != nil {
		return vNil(), err
	}
	path, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "String", path, isString); err != nil {
		return vNil(), err
	}
	f, oerr := os.OpenFile(path.Str, os.O_RDWR|os.O_CREATE, 0o644)
	if oerr != nil {
		return vNil(), derrors.New(derrors.IOError, oerr.Error()).WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	ex.nextFile++
	handle := ex.nextFile
	ex.files[handle] = f
	return vInt(int64(handle)), nil
}

func (ex *Executor) fileHandle(op bytecode.OpCode, resultID uint32, v Value) (*os.File, error) {
	if err := checkVariant(op, resultID, "Int", v, isInt); err != nil {
		return nil, err
	}
	f, ok := ex.files[uint32(v.Int)]
	if !ok {
		return nil, derrors.New(derrors.IOError, "unknown file handle").WithResultID(resultID).WithOpcode(op.String())
	}
	return f, nil
}

// evalFileRead implements FileRead(handle): reads all remaining bytes from
// the file as a String.
func (ex *Executor) evalFileRead(n *bytecode.Node) (Value, error) {
	if err := ex.requireCapability(n.Opcode, n.ResultID, graph.FileSystem); err != nil {
		return vNil(), err
	}
	h, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	f, err := ex.fileHandle(n.Opcode, n.ResultID, h)
	if err != nil {
		return vNil(), err
	}
	data, rerr := io.ReadAll(bufio.NewReader(f))
	if rerr != nil {
		return vNil(), derrors.New(derrors.IOError, rerr.Error()).WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return vString(string(data)), nil
}

// evalFileWrite implements FileWrite(handle, data).
func (ex *Executor) evalFileWrite(n *bytecode.Node) (Value, error) {
	if err := ex.requireCapability(n.Opcode, n.ResultID, graph.FileSystem); err != nil {
		return vNil(), err
	}
	h, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	data, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "String", data, isString); err != nil {
		return vNil(), err
	}
	f, err := ex.fileHandle(n.Opcode, n.ResultID, h)
	if err != nil {
		return vNil(), err
	}
	written, werr := f.WriteString(data.Str)
	if werr != nil {
		return vNil(), derrors.New(derrors.IOError, werr.Error()).WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return vInt(int64(written)), nil
}
