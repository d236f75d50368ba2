// Package record implements the serialization layer: typed accessors over a
// logical record that is physically a chain of pageio.Page payloads. It
// knows nothing about B+Tree semantics; btree and recordmgr build their
// on-disk layouts on top of Reader/Writer.
package record

import "github.com/mvbtree/mvbtree/pageio"

// firstPayload and extPayload are the per-page payload capacities a chain
// offers before (resp. after) the first page, mirroring
// pageio.Page.FirstPayload/ExtPayload.
func firstPayload(pageSize uint32) int { return int(pageSize) - 12 }
func extPayload(pageSize uint32) int   { return int(pageSize) - 8 }

// OffsetToPagePos maps a virtual offset within a logical record to the
// index of the page that holds it and the byte position within that page's
// payload region.
func OffsetToPagePos(p int64, pageSize uint32) (pageIndex int, pagePos int) {
	first := int64(firstPayload(pageSize))
	if p < first {
		return 0, int(p)
	}
	ext := int64(extPayload(pageSize))
	rem := p - first
	return 1 + int(rem/ext), int(rem % ext)
}

// payloadOf returns the payload slice of the i-th page in a chain, using
// FirstPayload for i==0 and ExtPayload otherwise.
func payloadOf(pages []*pageio.Page, i int) []byte {
	if i == 0 {
		return pages[0].FirstPayload()
	}
	return pages[i].ExtPayload()
}
