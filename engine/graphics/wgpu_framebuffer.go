package graphics

import "github.com/cogentcore/webgpu/wgpu"

// wgpuFramebuffer groups the attachment views a render pass targets. WebGPU has no
// framebuffer object; the pass descriptor is built from these at draw time.
type wgpuFramebuffer struct {
	framebufferBase
	color *wgpuTexture
	depth *wgpuTexture
}

var _ framebufferResource = &wgpuFramebuffer{}

func (f *wgpuFramebuffer) create(desc FramebufferDescriptor) error {
	for i, a := range desc.Attachments {
		if a.Texture == nil {
			continue
		}
		if _, ok := a.Texture.(*wgpuTexture); !ok {
			return invalidf("framebuffer %q attachment %d is not a wgpu texture", desc.Label, i)
		}
	}
	if err := f.initBase(desc); err != nil {
		return err
	}
	if a, ok := desc.colorAttachment(0); ok {
		f.color = a.Texture.(*wgpuTexture)
	}
	if a, ok := desc.depthAttachment(); ok {
		f.depth = a.Texture.(*wgpuTexture)
	}
	return nil
}

// attachments returns the color slot 0 and depth views.
func (f *wgpuFramebuffer) attachments() (*wgpu.TextureView, *wgpu.TextureView) {
	var color, depth *wgpu.TextureView
	if f.color != nil {
		color = f.color.levelView(0)
	}
	if f.depth != nil {
		depth = f.depth.levelView(0)
	}
	return color, depth
}

func (f *wgpuFramebuffer) Bind() {
	f.bindSelf(f)
}

func (f *wgpuFramebuffer) Release() {
	if f.releaseBase(f) {
		f.color, f.depth = nil, nil
	}
}
