package bundle

import (
	"github.com/cockroachdb/errors"
)

const (
	nodeType    EntityTypeName = "Node"
	sceneType   EntityTypeName = "Scene"
	widgetType  EntityTypeName = "Widget"
	gadgetType  EntityTypeName = "Gadget"
	baseType    EntityTypeName = "Base"
	brokenType  EntityTypeName = "Broken"
	lenientType EntityTypeName = "Lenient"
)

var (
	nodeName  = String("name").Mandatory()
	nodeNext  = Ref("next")
	nodePeers = RefList("peers")
)

// Node 是一个可以组成链、环与共享引用的测试实体。
type Node struct {
	Name  string
	Next  *Node
	Peers []*Node

	nextRef  EntityReference
	peerRefs []EntityReference
}

func (n *Node) EntityTypeName() EntityTypeName { return nodeType }

func (n *Node) BundleSelf(p *Packer) (*Bundle, error) {
	b := p.NewBuilder(nodeType, 1)
	nodeName.Put(b, n.Name)
	nodeNext.Put(b, n.Next)
	if len(n.Peers) > 0 {
		nodePeers.Put(b, AsPackables(n.Peers))
	}
	return b.Build()
}

func (n *Node) FinishUnpacking(r Resolver) bool {
	var err error
	if n.Next, err = ResolveAs[*Node](r, n.nextRef); err != nil {
		return false
	}
	if n.Peers, err = ResolveAll[*Node](r, n.peerRefs); err != nil {
		return false
	}
	return true
}

func nodeFactory() Factory {
	return Factory{Oldest: 1, Newest: 1, Construct: func(b *Bundle) (Entity, error) {
		name, err := nodeName.Get(b)
		if err != nil {
			return nil, err
		}
		next, err := nodeNext.Get(b)
		if err != nil {
			return nil, err
		}
		peers, err := nodePeers.Get(b)
		if err != nil {
			return nil, err
		}
		return &Node{Name: name, nextRef: next, peerRefs: peers}, nil
	}}
}

var (
	sceneChain = Ref("chain").Mandatory()
	sceneItems = RefList("items")
)

// Scene 持有一条链与一个列表，两者可能共享实例。
type Scene struct {
	Chain *Node
	Items []*Node

	chainRef EntityReference
	itemRefs []EntityReference
}

func (s *Scene) EntityTypeName() EntityTypeName { return sceneType }

func (s *Scene) BundleSelf(p *Packer) (*Bundle, error) {
	b := p.NewBuilder(sceneType, 1)
	sceneChain.Put(b, s.Chain)
	sceneItems.Put(b, AsPackables(s.Items))
	return b.Build()
}

func (s *Scene) FinishUnpacking(r Resolver) bool {
	var err error
	if s.Chain, err = ResolveAs[*Node](r, s.chainRef); err != nil {
		return false
	}
	s.Items, err = ResolveAll[*Node](r, s.itemRefs)
	return err == nil
}

func sceneFactory() Factory {
	return Factory{Oldest: 1, Newest: 1, Construct: func(b *Bundle) (Entity, error) {
		chain, err := sceneChain.Get(b)
		if err != nil {
			return nil, err
		}
		items, err := sceneItems.Get(b)
		if err != nil {
			return nil, err
		}
		return &Scene{chainRef: chain, itemRefs: items}, nil
	}}
}

// Widget 在版本 2 中新增了必填字段 color，版本 1 的 bundle 由工厂补默认值。
var (
	widgetLabel    = String("label").Mandatory()
	widgetColor    = String("color").Mandatory()
	widgetWeight   = Float("weight")
	widgetCount    = Int32("count").WithDefault(1)
	widgetChecksum = Bytes("checksum")
)

const defaultWidgetColor = "grey"

type Widget struct {
	Label    string
	Color    string
	Weight   float64
	Count    int32
	Checksum []byte

	version uint32
}

func (w *Widget) EntityTypeName() EntityTypeName { return widgetType }

func (w *Widget) BundleSelf(p *Packer) (*Bundle, error) {
	version := w.version
	if version == 0 {
		version = 2
	}
	b := p.NewBuilder(widgetType, version)
	widgetLabel.Put(b, w.Label)
	if version >= 2 {
		widgetColor.Put(b, w.Color)
	}
	widgetWeight.Put(b, w.Weight)
	widgetCount.Put(b, w.Count)
	if w.Checksum != nil {
		widgetChecksum.Put(b, w.Checksum)
	}
	return b.Build()
}

func (w *Widget) FinishUnpacking(Resolver) bool { return true }

func widgetFactory() Factory {
	return Factory{Oldest: 1, Newest: 2, Construct: func(b *Bundle) (Entity, error) {
		w := &Widget{version: b.Version()}
		var err error
		if w.Label, err = widgetLabel.Get(b); err != nil {
			return nil, err
		}
		if b.Version() < 2 {
			w.Color = defaultWidgetColor
		} else if w.Color, err = widgetColor.Get(b); err != nil {
			return nil, err
		}
		if w.Weight, err = widgetWeight.Get(b); err != nil {
			return nil, err
		}
		if w.Count, err = widgetCount.Get(b); err != nil {
			return nil, err
		}
		if w.Checksum, err = widgetChecksum.Get(b); err != nil {
			return nil, err
		}
		return w, nil
	}}
}

// Gadget 的基类状态保存在父 bundle 中，父子 bundle 都有名为 serial 的字段。
var (
	baseSerial   = Uint("serial").Mandatory()
	gadgetSerial = String("serial").Mandatory()
	gadgetOwner  = Ref("owner")
)

type Gadget struct {
	BaseSerial uint64
	Serial     string
	Owner      *Node

	ownerRef EntityReference
}

func (g *Gadget) EntityTypeName() EntityTypeName { return gadgetType }

func (g *Gadget) BundleSelf(p *Packer) (*Bundle, error) {
	base := p.NewBuilder(baseType, 1)
	baseSerial.Put(base, g.BaseSerial)
	super, err := base.Build()
	if err != nil {
		return nil, err
	}
	b := p.NewBuilder(gadgetType, 1).SetSuper(super)
	gadgetSerial.Put(b, g.Serial)
	gadgetOwner.Put(b, g.Owner)
	return b.Build()
}

func (g *Gadget) FinishUnpacking(r Resolver) bool {
	var err error
	g.Owner, err = ResolveAs[*Node](r, g.ownerRef)
	return err == nil
}

func gadgetFactory() Factory {
	return Factory{Oldest: 1, Newest: 1, Construct: func(b *Bundle) (Entity, error) {
		if b.Super() == nil {
			return nil, errors.New("gadget without base bundle")
		}
		g := &Gadget{}
		var err error
		if g.BaseSerial, err = baseSerial.Get(b.Super()); err != nil {
			return nil, err
		}
		if g.Serial, err = gadgetSerial.Get(b); err != nil {
			return nil, err
		}
		if g.ownerRef, err = gadgetOwner.Get(b); err != nil {
			return nil, err
		}
		return g, nil
	}}
}

// Broken 在第二阶段总是报告失败。
type Broken struct{}

func (*Broken) EntityTypeName() EntityTypeName { return brokenType }

func (*Broken) BundleSelf(p *Packer) (*Bundle, error) {
	return p.NewBuilder(brokenType, 1).Build()
}

func (*Broken) FinishUnpacking(Resolver) bool { return false }

// Lenient 忽略解析错误并总是返回成功。
type Lenient struct {
	target EntityReference
}

func (*Lenient) EntityTypeName() EntityTypeName { return lenientType }

func (*Lenient) BundleSelf(p *Packer) (*Bundle, error) {
	return p.NewBuilder(lenientType, 1).Build()
}

func (l *Lenient) FinishUnpacking(r Resolver) bool {
	_, _ = r.Resolve(l.target)
	return true
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(nodeType, nodeFactory())
	r.MustRegister(sceneType, sceneFactory())
	r.MustRegister(widgetType, widgetFactory())
	r.MustRegister(gadgetType, gadgetFactory())
	r.MustRegister(brokenType, Factory{Oldest: 1, Newest: 1, Construct: func(*Bundle) (Entity, error) {
		return &Broken{}, nil
	}})
	r.MustRegister(lenientType, Factory{Oldest: 1, Newest: 1, Construct: func(b *Bundle) (Entity, error) {
		target, err := Ref("target").Get(b)
		if err != nil {
			return nil, err
		}
		return &Lenient{target: target}, nil
	}})
	return r
}

// record 使用不关联 Packer 的 Builder 手工构造一条记录。
func record(id InstanceID, typeName EntityTypeName, version uint32, fields ...Field) Record {
	b := NewBuilder(typeName, version)
	for _, f := range fields {
		b.Set(f.Name, f.Value)
	}
	bundle, err := b.Build()
	if err != nil {
		panic(err)
	}
	return Record{ID: id, Bundle: bundle}
}
