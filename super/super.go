// Package super owns the disk and its layout: one reserved superblock,
// the journal's log region, then data blocks.
package super

import (
	"github.com/pkg/errors"
	"github.com/tchajed/goose/machine/disk"

	"github.com/JohnJacobsonIII/go-fslog/bcache"
	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/util"
)

type FsSuper struct {
	Disk *bcache.Bcache
	Size uint64
	nLog uint64
}

// MkFsSuper creates a superblock over a fresh in-memory disk of sz
// blocks, or over the disk image at *name if name is non-nil.
func MkFsSuper(sz uint64, name *string) (*FsSuper, error) {
	if sz < 1+common.NLOGBLKS+1 {
		return nil, errors.Errorf("disk of %d blocks cannot hold the log", sz)
	}
	var d disk.Disk
	if name != nil {
		util.DPrintf(1, "MkFsSuper: open file disk %s\n", *name)
		file, err := disk.NewFileDisk(*name, sz)
		if err != nil {
			return nil, errors.Wrap(err, "open disk image")
		}
		d = file
	} else {
		util.DPrintf(1, "MkFsSuper: create mem disk\n")
		d = disk.NewMemDisk(sz)
	}
	return MkFsSuperOn(d), nil
}

// MkFsSuperOn wraps an existing disk in a fresh superblock and buffer
// cache; reattaching after a restart goes through here so nothing warm
// survives from before the crash.
func MkFsSuperOn(d disk.Disk) *FsSuper {
	sz := d.Size()
	if sz < 1+common.NLOGBLKS+1 {
		panic("MkFsSuperOn: disk cannot hold the log")
	}
	return &FsSuper{
		Disk: bcache.MkBcache(d),
		Size: sz,
		nLog: common.NLOGBLKS,
	}
}

// LogStart is the first block of the log region.
func (fs *FsSuper) LogStart() common.Bnum {
	return common.Bnum(1)
}

// NLog is the size of the log region in blocks, including slot headers.
func (fs *FsSuper) NLog() uint64 {
	return fs.nLog
}

// DataStart is the first home-location block.
func (fs *FsSuper) DataStart() common.Bnum {
	return fs.LogStart() + common.Bnum(fs.nLog)
}

func (fs *FsSuper) MaxBnum() common.Bnum {
	return common.Bnum(fs.Size)
}
