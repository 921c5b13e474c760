package netiso

import (
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/handlers"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
)

// ============================================================================
// Dispatch Table
// ============================================================================

// CommandInfo describes one command of the dispatch table.
type CommandInfo struct {
	// Name is the command name used in logs and metric labels.
	Name string

	// Handler executes the command.
	Handler handlers.Handler

	// Mutates marks commands that change the served tree.
	Mutates bool
}

// DispatchTable maps every known opcode to its command.
//
// Initialized in init() so handler references are resolved once.
var DispatchTable map[wire.Opcode]*CommandInfo

func init() {
	DispatchTable = map[wire.Opcode]*CommandInfo{
		wire.OpOpenFile: {
			Name:    wire.OpOpenFile.String(),
			Handler: handlers.OpenFile,
		},
		wire.OpReadFileCritical: {
			Name:    wire.OpReadFileCritical.String(),
			Handler: handlers.ReadFileCritical,
		},
		wire.OpReadCD2048Critical: {
			Name:    wire.OpReadCD2048Critical.String(),
			Handler: handlers.ReadCD2048,
		},
		wire.OpReadFile: {
			Name:    wire.OpReadFile.String(),
			Handler: handlers.ReadFile,
		},
		wire.OpCreateFile: {
			Name:    wire.OpCreateFile.String(),
			Handler: handlers.CreateFile,
			Mutates: true,
		},
		wire.OpWriteFile: {
			Name:    wire.OpWriteFile.String(),
			Handler: handlers.WriteFile,
			Mutates: true,
		},
		wire.OpOpenDir: {
			Name:    wire.OpOpenDir.String(),
			Handler: handlers.OpenDir,
		},
		wire.OpReadDirEntry: {
			Name:    wire.OpReadDirEntry.String(),
			Handler: handlers.ReadDirEntry,
		},
		wire.OpDeleteFile: {
			Name:    wire.OpDeleteFile.String(),
			Handler: handlers.DeleteFile,
			Mutates: true,
		},
		wire.OpMkdir: {
			Name:    wire.OpMkdir.String(),
			Handler: handlers.Mkdir,
			Mutates: true,
		},
		wire.OpRmdir: {
			Name:    wire.OpRmdir.String(),
			Handler: handlers.Rmdir,
			Mutates: true,
		},
		wire.OpReadDirEntryV2: {
			Name:    wire.OpReadDirEntryV2.String(),
			Handler: handlers.ReadDirEntryV2,
		},
		wire.OpStatFile: {
			Name:    wire.OpStatFile.String(),
			Handler: handlers.StatFile,
		},
		wire.OpGetDirSize: {
			Name:    wire.OpGetDirSize.String(),
			Handler: handlers.GetDirSize,
		},
		wire.OpReadDir: {
			Name:    wire.OpReadDir.String(),
			Handler: handlers.ReadDir,
		},
	}
}

// Lookup returns the command registered for op.
func Lookup(op wire.Opcode) (*CommandInfo, bool) {
	info, ok := DispatchTable[op]
	return info, ok
}
