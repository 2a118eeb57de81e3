package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestFragmentCollectorAssemblesInOrder(t *testing.T) {
	c := NewFragmentCollector(4, 1<<10)

	fd0 := &FragmentDescriptor{CompoundID: 1, FragmentCount: 3, FragmentIndex: 0}
	fd1 := &FragmentDescriptor{CompoundID: 1, FragmentCount: 3, FragmentIndex: 1}
	fd2 := &FragmentDescriptor{CompoundID: 1, FragmentCount: 3, FragmentIndex: 2}

	if out, err := c.Insert(fd0, []byte("AB")); err != nil || out != nil {
		t.Fatalf("Insert(fd0) = %v, %v; want nil, nil", out, err)
	}
	if out, err := c.Insert(fd2, []byte("EF")); err != nil || out != nil {
		t.Fatalf("Insert(fd2) = %v, %v; want nil, nil", out, err)
	}
	out, err := c.Insert(fd1, []byte("CD"))
	if err != nil {
		t.Fatalf("Insert(fd1): %v", err)
	}
	if !bytes.Equal(out, []byte("ABCDEF")) {
		t.Fatalf("assembled = %q; want %q", out, "ABCDEF")
	}
	if c.InProgress() != 0 {
		t.Fatalf("InProgress() = %d; want 0 after completion", c.InProgress())
	}
}

func TestFragmentCollectorRejectsOutOfRangeIndex(t *testing.T) {
	c := NewFragmentCollector(4, 1<<10)
	fd := &FragmentDescriptor{CompoundID: 1, FragmentCount: 2, FragmentIndex: 2}
	if _, err := c.Insert(fd, []byte("x")); !errors.Is(err, ErrFragmentOverflow) {
		t.Fatalf("err = %v; want ErrFragmentOverflow", err)
	}
}

func TestFragmentCollectorEnforcesCompoundCap(t *testing.T) {
	c := NewFragmentCollector(1, 1<<10)
	c.Insert(&FragmentDescriptor{CompoundID: 1, FragmentCount: 2, FragmentIndex: 0}, []byte("a"))

	_, err := c.Insert(&FragmentDescriptor{CompoundID: 2, FragmentCount: 2, FragmentIndex: 0}, []byte("b"))
	if !errors.Is(err, ErrCompoundCapReached) {
		t.Fatalf("err = %v; want ErrCompoundCapReached", err)
	}
}

func TestFragmentCollectorEnforcesByteCap(t *testing.T) {
	c := NewFragmentCollector(4, 4)
	_, err := c.Insert(&FragmentDescriptor{CompoundID: 1, FragmentCount: 2, FragmentIndex: 0}, []byte("12345"))
	if !errors.Is(err, ErrCompoundCapReached) {
		t.Fatalf("err = %v; want ErrCompoundCapReached", err)
	}
}

func TestFragmentCollectorDropAll(t *testing.T) {
	c := NewFragmentCollector(4, 1<<10)
	c.Insert(&FragmentDescriptor{CompoundID: 1, FragmentCount: 2, FragmentIndex: 0}, []byte("a"))
	c.DropAll()
	if c.InProgress() != 0 {
		t.Fatalf("InProgress() after DropAll = %d; want 0", c.InProgress())
	}
}
