package comm

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/arloliu/bp4/errs"
)

const (
	fileStatusOK byte = iota
	fileStatusMissing
	fileStatusError
)

// BroadcastFile reads path on root and distributes its contents to every rank.
//
// A missing file yields empty contents and found=false on every rank. A read failure on
// root is reported to every rank as an I/O error so no rank is left waiting.
func BroadcastFile(c Comm, fs vfs.FS, path string, root int) (data []byte, found bool, err error) {
	var payload []byte
	if c.Rank() == root {
		payload = readForBroadcast(fs, path)
	}

	payload, err = c.Bcast(payload, root)
	if err != nil {
		return nil, false, err
	}
	if len(payload) == 0 {
		return nil, false, errors.Wrap(errs.ErrFormat, "empty file broadcast")
	}

	switch payload[0] {
	case fileStatusOK:
		return payload[1:], true, nil
	case fileStatusMissing:
		return nil, false, nil
	default:
		return nil, false, errors.Mark(errors.Newf("broadcast of %s failed on rank %d: %s", path, root, payload[1:]), errs.ErrIO)
	}
}

func readForBroadcast(fs vfs.FS, path string) []byte {
	f, err := fs.Open(path)
	if err != nil {
		if oserror.IsNotExist(err) {
			return []byte{fileStatusMissing}
		}

		return append([]byte{fileStatusError}, err.Error()...)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return append([]byte{fileStatusError}, err.Error()...)
	}

	return append([]byte{fileStatusOK}, data...)
}
