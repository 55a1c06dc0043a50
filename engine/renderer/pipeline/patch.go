package pipeline

import (
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// Sources are the patched WGSL texts of one pipeline.
type Sources struct {
	Vertex   string
	Fragment string
	Compute  string

	// Shared is true when the vertex and fragment bodies are identical and one module serves both stages.
	Shared bool
}

// Patch builds the final WGSL for desc. The declaration block is, in order: every requested shared
// prelude once in registration order, then for each group by ascending index and each binding by
// position, the binding's struct (once per distinct text) followed by its @group/@binding declaration.
// The block is prepended to each stage body; the vertex attribute struct goes only into the
// vertex-consuming source.
//
// Parameters:
//   - desc: the pipeline descriptor
//
// Returns:
//   - Sources: the patched sources
func Patch(desc Descriptor) Sources {
	block := DeclarationBlock(desc)
	if desc.Compute != nil {
		return Sources{Compute: block + desc.Compute.Source()}
	}

	vertex := block + attributeBlock(desc.Vertices) + desc.Vertex.Source()
	if desc.Fragment == nil || desc.Fragment.Source() == desc.Vertex.Source() {
		return Sources{Vertex: vertex, Fragment: vertex, Shared: true}
	}
	return Sources{Vertex: vertex, Fragment: block + desc.Fragment.Source()}
}

// DeclarationBlock returns the preludes and bind group declarations shared by every stage of desc.
//
// Parameters:
//   - desc: the pipeline descriptor
//
// Returns:
//   - string: the declaration block, ending in a blank line when not empty
func DeclarationBlock(desc Descriptor) string {
	groups := sortedGroups(desc.Groups)

	var requested []string
	for _, s := range []shader.Shader{desc.Vertex, desc.Fragment, desc.Compute} {
		if s != nil {
			requested = append(requested, s.Includes()...)
		}
	}
	for _, g := range groups {
		requested = append(requested, g.Chunks()...)
	}

	var sb strings.Builder
	for _, name := range shader.OrderChunks(requested) {
		src, _ := shader.ChunkSource(name)
		sb.WriteString(src)
		if !strings.HasSuffix(src, "\n") {
			sb.WriteString("\n")
		}
	}

	emitted := make(map[string]struct{})
	for _, g := range groups {
		for j, b := range g.Bindings() {
			if frag := b.StructFragment(); frag != "" {
				if _, ok := emitted[frag]; !ok {
					emitted[frag] = struct{}{}
					sb.WriteString(frag)
					sb.WriteString("\n")
				}
			}
			fmt.Fprintf(&sb, "@group(%d) @binding(%d) %s\n", g.Index(), j, b.Declaration())
		}
	}

	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func attributeBlock(v VertexLayout) string {
	if v.Struct == "" {
		return ""
	}
	if strings.HasSuffix(v.Struct, "\n") {
		return v.Struct + "\n"
	}
	return v.Struct + "\n\n"
}

// sortedGroups orders groups by ascending index. Equal indices keep their given order.
func sortedGroups(groups []bind_group.BindGroup) []bind_group.BindGroup {
	out := append([]bind_group.BindGroup(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Index() < out[j].Index()
	})
	return out
}

// signatureOf hashes everything that makes two pipelines interchangeable.
func signatureOf(desc Descriptor, sources Sources) uint64 {
	h := fnv.New64a()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = io.WriteString(h, p)
			_, _ = h.Write([]byte{0})
		}
	}

	// equal text with different visibility still needs a distinct pipeline layout
	write(fmt.Sprint(desc.Type()), sources.Vertex, sources.Fragment, sources.Compute, LayoutSignature(desc.Groups))
	if desc.Compute != nil {
		write(desc.Compute.EntryPoint())
		return h.Sum64()
	}
	write(desc.Vertex.EntryPoint(), desc.Options.signature(), desc.Vertices.Fingerprint)
	if desc.Fragment != nil {
		write(desc.Fragment.EntryPoint())
	}
	for _, b := range desc.Vertices.Buffers {
		write(fmt.Sprintf("%d/%d/%v", b.ArrayStride, b.StepMode, b.Attributes))
	}
	return h.Sum64()
}
