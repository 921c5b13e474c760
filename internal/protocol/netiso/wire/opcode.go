// Package wire holds the ps3netsrv wire format: opcodes, the fixed 16-byte
// request header, big-endian integer helpers, the response buffer pool and
// the protocol error taxonomy.
//
// Every request starts with a 16-byte header:
//
//	+--------+--------------------------------------------+
//	| opcode |  14 bytes of opcode-specific fields (BE)    |
//	| u16 BE |                                            |
//	+--------+--------------------------------------------+
//
// Commands that carry a path or write payload read it from the stream after
// the header; its length is one of the header fields. All integers on the
// wire are big-endian.
package wire

import "fmt"

// Opcode identifies a command.
type Opcode uint16

const (
	// OpOpenFile closes the read handle and opens a file. Header: fp_len u16.
	OpOpenFile Opcode = 0x1224 + iota

	// OpReadFileCritical reads exactly num_bytes at offset. Header: pad u16,
	// num_bytes u32, offset u64. A failed read closes the connection.
	OpReadFileCritical

	// OpReadCD2048Critical reads 2048-byte user data out of raw CD sectors.
	// Header: pad u16, start_sector u32, sector_count u32.
	OpReadCD2048Critical

	// OpReadFile is a best-effort read. Header as OpReadFileCritical.
	OpReadFile

	// OpCreateFile truncates an existing file and makes it the write handle. Header: fp_len u16.
	OpCreateFile

	// OpWriteFile writes num_bytes of payload. Header: pad u16, num_bytes u32.
	OpWriteFile

	// OpOpenDir selects the directory for a later OpReadDir. Header: dp_len u16.
	OpOpenDir

	// OpReadDirEntry pops one entry of the listing queue.
	OpReadDirEntry

	// OpDeleteFile removes a file. Header: fp_len u16.
	OpDeleteFile

	// OpMkdir creates a directory. Header: dp_len u16.
	OpMkdir

	// OpRmdir removes an empty directory. Header: dp_len u16.
	OpRmdir

	// OpReadDirEntryV2 pops one entry with timestamps.
	OpReadDirEntryV2

	// OpStatFile stats a file, directory or virtual image. Header: fp_len u16.
	OpStatFile

	// OpGetDirSize sums file sizes below a directory. Header: dp_len u16.
	OpGetDirSize

	// OpReadDir returns the whole listing of the last opened directory.
	OpReadDir
)

var opcodeNames = map[Opcode]string{
	OpOpenFile:           "OPEN_FILE",
	OpReadFileCritical:   "READ_FILE_CRITICAL",
	OpReadCD2048Critical: "READ_CD_2048_CRITICAL",
	OpReadFile:           "READ_FILE",
	OpCreateFile:         "CREATE_FILE",
	OpWriteFile:          "WRITE_FILE",
	OpOpenDir:            "OPEN_DIR",
	OpReadDirEntry:       "READ_DIR_ENTRY",
	OpDeleteFile:         "DELETE_FILE",
	OpMkdir:              "MKDIR",
	OpRmdir:              "RMDIR",
	OpReadDirEntryV2:     "READ_DIR_ENTRY_V2",
	OpStatFile:           "STAT_FILE",
	OpGetDirSize:         "GET_DIR_SIZE",
	OpReadDir:            "READ_DIR",
}

// String returns the command name, or UNKNOWN_0xNNNN for unassigned values.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_0x%04X", uint16(o))
}

// Known reports whether o is an assigned opcode.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}
