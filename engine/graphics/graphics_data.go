package graphics

import "sync"

// GraphicsData is an opaque GPU buffer used for uniform blocks, storage, vertex or index data.
type GraphicsData interface {
	// Descriptor returns the creation descriptor. Its Data field is not kept.
	Descriptor() GraphicsDataDescriptor

	// Label returns the buffer's debug label.
	Label() string

	// Map copies a byte range into a staging slice. Writes reach the buffer on Unmap when
	// the buffer was created with GraphicsUsageWrite.
	//
	// Parameters:
	//   - offset: the first byte
	//   - size: the number of bytes
	//
	// Returns:
	//   - []byte: the staging bytes
	//   - error: an error if the readback fails
	Map(offset, size int) ([]byte, error)

	// Unmap ends the current mapping.
	Unmap()

	// Update overwrites bytes starting at offset.
	//
	// Parameters:
	//   - offset: the first byte to write
	//   - data: the new contents
	//
	// Returns:
	//   - error: an error if the buffer is not updatable or the range is out of bounds
	Update(offset int, data []byte) error

	// Release frees the buffer.
	Release()
}

// graphicsDataResource is the construction surface every buffer variant implements.
type graphicsDataResource interface {
	GraphicsData
	setDevice(h DeviceHandle)
	create(desc GraphicsDataDescriptor) error
}

// graphicsDataBase holds the state shared by the buffer variants.
type graphicsDataBase struct {
	mu       sync.Mutex
	desc     GraphicsDataDescriptor
	handle   DeviceHandle
	released bool

	mapped     bool
	mapOffset  int
	mapStaging []byte
}

func (g *graphicsDataBase) Descriptor() GraphicsDataDescriptor {
	return g.desc
}

func (g *graphicsDataBase) Label() string {
	return g.desc.Label
}

func (g *graphicsDataBase) setDevice(h DeviceHandle) {
	g.handle = h
}

// initBase validates desc and stores it without the seed data.
func (g *graphicsDataBase) initBase(desc GraphicsDataDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	g.desc = desc
	g.desc.Data = nil
	return nil
}

// beginMap validates a map request and records it.
func (g *graphicsDataBase) beginMap(offset, size int) {
	precondition(!g.released, "map on released graphics data %q", g.desc.Label)
	precondition(!g.mapped, "graphics data %q is already mapped", g.desc.Label)
	precondition(offset >= 0 && size > 0 && offset+size <= g.desc.Size, "range [%d, %d) is outside graphics data %q of size %d", offset, offset+size, g.desc.Label, g.desc.Size)
	precondition(g.desc.Usage&(GraphicsUsageRead|GraphicsUsageWrite) != 0, "graphics data %q is not mappable", g.desc.Label)
	g.mapped = true
	g.mapOffset = offset
}

// endMap returns the active mapping and clears it.
func (g *graphicsDataBase) endMap() (int, []byte) {
	precondition(g.mapped, "unmap on graphics data %q that is not mapped", g.desc.Label)
	offset, staging := g.mapOffset, g.mapStaging
	g.mapped = false
	g.mapStaging = nil
	return offset, staging
}

// checkUpdate validates an Update request.
func (g *graphicsDataBase) checkUpdate(offset int, data []byte) error {
	precondition(!g.released, "update on released graphics data %q", g.desc.Label)
	if g.desc.Usage&(GraphicsUsageDynamicStorage|GraphicsUsageWrite) == 0 {
		return invalidf("graphics data %q is not updatable", g.desc.Label)
	}
	if offset < 0 || offset+len(data) > g.desc.Size {
		return invalidf("update [%d, %d) is outside graphics data %q of size %d", offset, offset+len(data), g.desc.Label, g.desc.Size)
	}
	return nil
}

// releaseBase marks the buffer released. It reports false on a repeated call.
func (g *graphicsDataBase) releaseBase() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return false
	}
	g.released = true
	g.mapped = false
	g.mapStaging = nil
	return true
}
