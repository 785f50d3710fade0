// Package main provides C-compatible exports for the kfx library.
// Build with: go build -buildmode=c-shared -o kfx.dll
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Result structure for operations that return data
typedef struct {
    char* data;
    int   data_len;
    char* error;
} KfxResult;
*/
import "C"

import (
	"encoding/json"
	"unsafe"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/convert"
	"github.com/logicossoftware/go-kfx/diag"
	"github.com/logicossoftware/go-kfx/render"
)

// Flags accepted by KfxConvert.
const (
	flagEPUB2            = 1
	flagForceCover       = 2
	flagAllowFixedLayout = 4
)

func main() {}

// KfxVersion returns the container major version supported by this library.
//
//export KfxVersion
func KfxVersion() C.uint16_t {
	return C.uint16_t(kfx.VersionMajor1)
}

// KfxFreeResult frees memory allocated by other Kfx functions.
// Must be called to avoid memory leaks.
//
//export KfxFreeResult
func KfxFreeResult(result C.KfxResult) {
	if result.data != nil {
		C.free(unsafe.Pointer(result.data))
	}
	if result.error != nil {
		C.free(unsafe.Pointer(result.error))
	}
}

// KfxFreeString frees a C string allocated by Go.
//
//export KfxFreeString
func KfxFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

// makeResult creates a result with data.
func makeResult(data []byte) C.KfxResult {
	var result C.KfxResult
	if len(data) > 0 {
		result.data = (*C.char)(C.CBytes(data))
		result.data_len = C.int(len(data))
	}
	return result
}

// makeError creates a result with an error message.
func makeError(err error) C.KfxResult {
	var result C.KfxResult
	result.error = C.CString(err.Error())
	return result
}

func resolve(data *C.char, dataLen C.int) (*book.Book, *diag.Report, error) {
	store, err := kfx.Parse(C.GoBytes(unsafe.Pointer(data), dataLen))
	if err != nil {
		return nil, nil, err
	}
	report := diag.NewReport()
	b, err := book.Resolve(store, book.WithReport(report))
	if err != nil {
		return nil, nil, err
	}
	return b, report, nil
}

// KfxConvert renders a container to one output format.
// Parameters:
//   - data: pointer to container bytes
//   - dataLen: length of the data
//   - format: one of "epub", "pdf", "cbz", "unpack" or "json"
//   - flags: bitmask (1=EPUB 2, 2=force cover, 4=allow fixed-layout EPUB)
//
// Returns KfxResult with the output file or error. Call KfxFreeResult when done.
//
//export KfxConvert
func KfxConvert(data *C.char, dataLen C.int, format *C.char, flags C.int) C.KfxResult {
	f, err := render.ParseFormat(C.GoString(format))
	if err != nil {
		return makeError(err)
	}
	opts := render.DefaultOptions()
	opts.EPUB2 = flags&flagEPUB2 != 0
	opts.ForceCover = flags&flagForceCover != 0
	opts.AllowFixedLayout = flags&flagAllowFixedLayout != 0

	res, err := convert.Convert([][]byte{C.GoBytes(unsafe.Pointer(data), dataLen)},
		convert.Request{Formats: []render.Format{f}, Options: opts})
	if err != nil {
		return makeError(err)
	}
	o, _ := res.Output(f)
	if o.Err != nil {
		return makeError(o.Err)
	}
	return makeResult(o.Data)
}

// KfxInspect decodes a container and returns the resolved book as JSON,
// without resource data, plus any warnings.
//
// Returns KfxResult with JSON string or error. Call KfxFreeResult when done.
//
//export KfxInspect
func KfxInspect(data *C.char, dataLen C.int) C.KfxResult {
	b, report, err := resolve(data, dataLen)
	if err != nil {
		return makeError(err)
	}
	out, err := json.Marshal(map[string]any{
		"book":     b,
		"warnings": report.Warnings(),
	})
	if err != nil {
		return makeError(err)
	}
	return makeResult(out)
}

// KfxGetResource retrieves the raw bytes of a resource by id.
//
// Returns KfxResult with resource data or error. Call KfxFreeResult when done.
//
//export KfxGetResource
func KfxGetResource(data *C.char, dataLen C.int, resourceID *C.char) C.KfxResult {
	b, _, err := resolve(data, dataLen)
	if err != nil {
		return makeError(err)
	}
	id := C.GoString(resourceID)
	if res, ok := b.Resource(id); ok {
		return makeResult(res.Data)
	}
	var result C.KfxResult
	result.error = C.CString("resource not found: " + id)
	return result
}

// KfxValidate parses a container and checks that it resolves to a book.
// Returns NULL on success, or an error message string on failure.
// Call KfxFreeString on the result if non-NULL.
//
//export KfxValidate
func KfxValidate(data *C.char, dataLen C.int) *C.char {
	if _, _, err := resolve(data, dataLen); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

// KfxGetSectionCount returns the number of sections in the reading order.
// Returns -1 on error.
//
//export KfxGetSectionCount
func KfxGetSectionCount(data *C.char, dataLen C.int) C.int {
	b, _, err := resolve(data, dataLen)
	if err != nil {
		return -1
	}
	return C.int(len(b.Sections))
}
