package graphics

// softwareGraphicsData is a host-memory buffer.
type softwareGraphicsData struct {
	graphicsDataBase
	data []byte
}

var _ graphicsDataResource = &softwareGraphicsData{}

func (g *softwareGraphicsData) create(desc GraphicsDataDescriptor) error {
	if err := g.initBase(desc); err != nil {
		return err
	}
	g.data = make([]byte, desc.Size)
	copy(g.data, desc.Data)
	return nil
}

func (g *softwareGraphicsData) Map(offset, size int) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.beginMap(offset, size)
	g.mapStaging = append([]byte(nil), g.data[offset:offset+size]...)
	return g.mapStaging, nil
}

func (g *softwareGraphicsData) Unmap() {
	g.mu.Lock()
	defer g.mu.Unlock()

	offset, staging := g.endMap()
	if g.desc.Usage&GraphicsUsageWrite != 0 {
		copy(g.data[offset:], staging)
	}
}

func (g *softwareGraphicsData) Update(offset int, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkUpdate(offset, data); err != nil {
		return err
	}
	copy(g.data[offset:], data)
	return nil
}

func (g *softwareGraphicsData) Release() {
	if g.releaseBase() {
		g.mu.Lock()
		g.data = nil
		g.mu.Unlock()
	}
}
