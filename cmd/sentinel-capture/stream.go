package main

import (
	"bytes"
	"hash/fnv"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
	"golang.org/x/sync/errgroup"

	"github.com/aol/moloch/classify"
	"github.com/aol/moloch/dissect"
	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/internal/elog"
	"github.com/aol/moloch/session"
)

// workerPool shards flows across a fixed number of single-threaded
// reassembly workers: the stream.Accept hash keeps every packet of a
// given five-tuple on the same worker, so no locking is needed inside a
// worker's session table. This is the ring-buffer-segment-per-worker
// model SPEC_FULL §7 calls for, adapted to an offline pcap source
// instead of a live tpacketv3 ring.
type workerPool struct {
	eng     *engine.Engine
	workers []*worker
	group   *errgroup.Group
}

type packetJob struct {
	data []byte
	ci   gopacket.CaptureInfo
	link layers.LinkType
}

type worker struct {
	eng       *engine.Engine
	jobs      chan packetJob
	assembler *reassembly.Assembler
	sessions  int
}

// newWorkerPool starts n reassembly shards, each supervised by its own
// errgroup goroutine so a panic-free worker error (FlushAll never
// returns one today, but the supervision is load-bearing if a future
// stream implementation reports one) surfaces through pool.close()
// instead of vanishing.
func newWorkerPool(eng *engine.Engine, n int) *workerPool {
	var g errgroup.Group
	p := &workerPool{eng: eng, workers: make([]*worker, n), group: &g}
	for i := range p.workers {
		w := &worker{eng: eng, jobs: make(chan packetJob, 256)}
		factory := &streamFactory{eng: eng, w: w}
		pool := reassembly.NewStreamPool(factory)
		w.assembler = reassembly.NewAssembler(pool)
		p.workers[i] = w
		g.Go(w.run)
	}
	return p
}

// dispatch hashes the packet's network+transport flow to a worker shard
// and enqueues it; parse errors are dropped (best-effort over a capture
// file, same posture as the dissectors have toward malformed input).
func (p *workerPool) dispatch(data []byte, ci gopacket.CaptureInfo, link layers.LinkType) {
	idx := 0
	if len(p.workers) > 1 {
		idx = int(flowHash(data, link) % uint64(len(p.workers)))
	}
	p.workers[idx].jobs <- packetJob{data: data, ci: ci, link: link}
}

// close signals every worker to drain and flush, then waits for the
// whole group via errgroup, returning the first worker error if any.
func (p *workerPool) close() error {
	for _, w := range p.workers {
		close(w.jobs)
	}
	return p.group.Wait()
}

func (p *workerPool) reportSummary(log *elog.Logger) {
	total := 0
	for _, w := range p.workers {
		total += w.sessions
	}
	log.Info("sessions observed", elog.KV("count", total))
}

// flowHash must return the same value for both directions of a flow, so
// a reversed packet lands on the same worker shard as its forward half:
// it hashes each endpoint pair independently and combines with XOR
// rather than writing them in packet order.
func flowHash(data []byte, link layers.LinkType) uint64 {
	pkt := gopacket.NewPacket(data, link, gopacket.NoCopy)
	var combined uint64
	if nl := pkt.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		combined ^= hashBytes(src.Raw()) ^ hashBytes(dst.Raw())
	}
	if tl := pkt.TransportLayer(); tl != nil {
		src, dst := tl.TransportFlow().Endpoints()
		combined ^= hashBytes(src.Raw()) ^ hashBytes(dst.Raw())
	}
	return combined
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

func (w *worker) run() error {
	for job := range w.jobs {
		w.handle(job)
	}
	w.assembler.FlushAll()
	return nil
}

func (w *worker) handle(job packetJob) {
	pkt := gopacket.NewPacket(job.data, job.link, gopacket.NoCopy)

	if tcp, ok := pkt.TransportLayer().(*layers.TCP); ok {
		ac := &reassemblyContext{ci: job.ci}
		w.assembler.AssembleWithContext(pkt.NetworkLayer().NetworkFlow(), tcp, ac)
		return
	}
	if udp, ok := pkt.TransportLayer().(*layers.UDP); ok {
		if udp.DstPort == 53 || udp.SrcPort == 53 {
			w.handleDNS(pkt, udp)
		}
	}
}

func (w *worker) handleDNS(pkt gopacket.Packet, udp *layers.UDP) {
	tuple := fiveTupleFromPacket(pkt, udp.SrcPort, udp.DstPort, 17)
	s := session.New(tuple, w.eng.Registry)
	w.eng.SeedSession(s)
	dissect.ProcessDNS(w.eng, s, udp.Payload)
	w.sessions++
}

func fiveTupleFromPacket(pkt gopacket.Packet, srcPort, dstPort layers.UDPPort, proto uint8) session.FiveTuple {
	var src, dst net.IP
	if nl := pkt.NetworkLayer(); nl != nil {
		switch v := nl.(type) {
		case *layers.IPv4:
			src, dst = v.SrcIP, v.DstIP
		case *layers.IPv6:
			src, dst = v.SrcIP, v.DstIP
		}
	}
	return session.FiveTuple{
		SrcIP: src, DstIP: dst,
		SrcPort: uint16(srcPort), DstPort: uint16(dstPort),
		Protocol: proto,
	}
}

// streamFactory builds one tcpStream per TCP flow, each owning its own
// session and classify/dissector dispatch state.
type streamFactory struct {
	eng *engine.Engine
	w   *worker
}

func (f *streamFactory) New(netFlow, tcpFlow gopacket.Flow, tcp *layers.TCP, ac reassembly.AssemblerContext) reassembly.Stream {
	a, b := netFlow.Endpoints()
	src, dst := net.IP(a.Raw()), net.IP(b.Raw())
	tuple := session.FiveTuple{
		SrcIP: src, DstIP: dst,
		SrcPort: uint16(tcp.SrcPort), DstPort: uint16(tcp.DstPort),
		Protocol: 6,
	}
	s := session.New(tuple, f.eng.Registry)
	f.eng.SeedSession(s)
	f.w.sessions++

	return &tcpStream{eng: f.eng, s: s, clientPort: tcp.SrcPort}
}

// tcpStream implements reassembly.Stream: it accepts every segment of a
// flow, and on each reassembled chunk classifies (on the first bytes of
// a half-stream) then routes to the matching protocol dissector based on
// the session state classify.Classify and the prior dissector calls have
// left behind.
type tcpStream struct {
	eng        *engine.Engine
	s          *session.Session
	clientPort layers.TCPPort

	classifyBuf  [2][]byte
	classifyDone [2]bool
	bannerSeen   [2]bool
}

const classifyPrefixCap = 256

func (t *tcpStream) Accept(tcp *layers.TCP, ci gopacket.CaptureInfo, dir reassembly.TCPFlowDirection, nextSeq reassembly.Sequence, start *bool, ac reassembly.AssemblerContext) bool {
	return true
}

func (t *tcpStream) ReassembledSG(sg reassembly.ScatterGather, ac reassembly.AssemblerContext) {
	dirFlag, _, _, _ := sg.Info()
	length, _ := sg.Lengths()
	if length == 0 {
		return
	}
	chunk := sg.Fetch(length)

	dir := session.Client
	if dirFlag != reassembly.TCPDirClientToServer {
		dir = session.Server
	}
	t.feed(dir, chunk)
}

func (t *tcpStream) ReassemblyComplete(ac reassembly.AssemblerContext) bool {
	return true // release the stream; nothing further to flush
}

// feed classifies the growing first-segment prefix of dir (bounded to
// classifyPrefixCap, matching the original's small fixed classify
// buffer) and dispatches every chunk to whichever dissector the
// session's current state calls for.
func (t *tcpStream) feed(dir session.Direction, chunk []byte) {
	if !t.classifyDone[dir] {
		priorBytes := len(t.classifyBuf[dir])
		if room := classifyPrefixCap - priorBytes; room > 0 {
			add := chunk
			if len(add) > room {
				add = add[:room]
			}
			t.classifyBuf[dir] = append(t.classifyBuf[dir], add...)
		}
		classify.Classify(t.eng, t.s, dir, t.classifyBuf[dir], priorBytes)
		if len(t.classifyBuf[dir]) >= classifyPrefixCap {
			t.classifyDone[dir] = true
		}
	}

	switch {
	case t.s.IsSSH:
		t.feedSSH(dir, chunk)
	case t.s.Email != nil:
		dissect.ProcessSMTP(t.eng, t.s, dir, chunk)
	case t.s.Fields.HasTag("protocol:irc"):
		dissect.ProcessIRC(t.eng, t.s, dir, chunk)
	case looksLikeHTTP(t.clientPort):
		dissect.ProcessHTTP(t.eng, t.s, dir, chunk)
	}
}

// feedSSH forwards bytes to the binary-phase dissector only after the
// banner line (captured by classify.Classify from the prefix buffer) has
// gone by; classify has no way to report how many bytes the banner
// consumed, so this tracks it locally per direction.
func (t *tcpStream) feedSSH(dir session.Direction, chunk []byte) {
	if t.bannerSeen[dir] {
		dissect.ProcessSSH(t.eng, t.s, dir, chunk)
		return
	}
	if idx := bytes.IndexByte(chunk, '\n'); idx >= 0 {
		t.bannerSeen[dir] = true
		if rest := chunk[idx+1:]; len(rest) > 0 {
			dissect.ProcessSSH(t.eng, t.s, dir, rest)
		}
	}
}

// looksLikeHTTP is a well-known-port heuristic standing in for the
// original's MIME-sniff-on-first-bytes HTTP detection; §7 treats session
// hashing and protocol dispatch ahead of the dissector boundary as an
// external capture-harness concern.
func looksLikeHTTP(clientPort layers.TCPPort) bool {
	switch clientPort {
	case 80, 8080, 8000, 3128:
		return true
	}
	return false
}
