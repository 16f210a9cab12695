package graphics

// softwareFramebuffer is a list of host-memory attachments.
type softwareFramebuffer struct {
	framebufferBase
}

var _ framebufferResource = &softwareFramebuffer{}

func (f *softwareFramebuffer) create(desc FramebufferDescriptor) error {
	for i, a := range desc.Attachments {
		if a.Texture == nil {
			continue
		}
		if _, ok := a.Texture.(*softwareTexture); !ok {
			return invalidf("framebuffer %q attachment %d is not a software texture", desc.Label, i)
		}
	}
	return f.initBase(desc)
}

func (f *softwareFramebuffer) Bind() {
	f.bindSelf(f)
}

func (f *softwareFramebuffer) Release() {
	f.releaseBase(f)
}
