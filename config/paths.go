package config

import (
	"path/filepath"

	"github.com/panda3d/panda3d-sub012/utils"
)

// Every backend type keeps its data under {RootDir}/{typ}/:
//
//	db/packages.json   installed package index
//	db/packages.lock   flock guarding the index
//	temp/              staging for downloads and extraction
//	packages/{digest}/ unpacked content, addressed by content digest

// EnsureDirs creates all directories used by backend typ.
func (c *Config) EnsureDirs(typ string) error {
	return utils.EnsureDirs(c.DBDir(typ), c.TempDir(typ), c.PackagesDir(typ))
}

func (c *Config) typDir(typ string) string         { return filepath.Join(c.RootDir, typ) }
func (c *Config) DBDir(typ string) string          { return filepath.Join(c.typDir(typ), "db") }
func (c *Config) TempDir(typ string) string        { return filepath.Join(c.typDir(typ), "temp") }
func (c *Config) PackagesDir(typ string) string    { return filepath.Join(c.typDir(typ), "packages") }
func (c *Config) IndexFile(typ string) string      { return filepath.Join(c.DBDir(typ), "packages.json") }
func (c *Config) IndexLock(typ string) string      { return filepath.Join(c.DBDir(typ), "packages.lock") }
func (c *Config) PackageDir(typ, hex string) string { return filepath.Join(c.PackagesDir(typ), hex) }
