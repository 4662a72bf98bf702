package gldevice

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"

	"lumen/pkg/gfx"
)

// presenter draws a device texture over the default framebuffer.
type presenter struct {
	program       uint32
	quadVAO       uint32
	quadVBO       uint32
	textureLoc    int32
	gammaLocation int32
	gamma         float32
}

func newPresenter(gamma float32) (*presenter, error) {
	prog, err := createShaderProgram(presentVertexShader, presentFragmentShader)
	if err != nil {
		return nil, err
	}
	p := &presenter{program: prog, gamma: gamma}
	p.textureLoc = gl.GetUniformLocation(prog, gl.Str("screenTexture\x00"))
	p.gammaLocation = gl.GetUniformLocation(prog, gl.Str("gamma\x00"))
	p.setupScreenQuad()
	return p, nil
}

// setupScreenQuad uploads a quad whose texture rows run top to bottom,
// matching the row order of device textures.
func (p *presenter) setupScreenQuad() {
	vertices := []float32{
		// Positions   // Texture coords
		-1.0, -1.0, 0.0, 0.0, 1.0,
		1.0, -1.0, 0.0, 1.0, 1.0,
		1.0, 1.0, 0.0, 1.0, 0.0,
		-1.0, 1.0, 0.0, 0.0, 0.0,
	}

	gl.GenVertexArrays(1, &p.quadVAO)
	gl.GenBuffers(1, &p.quadVBO)
	gl.BindVertexArray(p.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, p.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)

	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 5*4, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, 5*4, gl.PtrOffset(3*4))
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
}

// Present stretches t over a window viewport of width x height pixels
// with gamma correction. t must be in the shader-resource state.
func (d *Device) Present(t gfx.Texture, width, height int) error {
	tx, err := d.tex(t)
	if err != nil {
		return err
	}
	if d.present == nil {
		if d.present, err = newPresenter(2.2); err != nil {
			return fmt.Errorf("present: %w", err)
		}
	}
	p := d.present
	gl.MemoryBarrier(gl.TEXTURE_FETCH_BARRIER_BIT)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.Disable(gl.DEPTH_TEST)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	gl.UseProgram(p.program)
	gl.BindTextureUnit(0, tx.id)
	gl.BindSampler(0, d.linear)
	gl.Uniform1i(p.textureLoc, 0)
	gl.Uniform1f(p.gammaLocation, p.gamma)

	gl.BindVertexArray(p.quadVAO)
	gl.DrawArrays(gl.TRIANGLE_FAN, 0, 4)
	gl.BindVertexArray(0)
	return nil
}

func (p *presenter) close() {
	gl.DeleteVertexArrays(1, &p.quadVAO)
	gl.DeleteBuffers(1, &p.quadVBO)
	gl.DeleteProgram(p.program)
}
