// Package config_global reads kiosk configuration.
//
// Configuration may be spread over several files joined with include blocks.
// Files are decoded in order of appearance, values from later files override
// earlier ones. Devices are keyed by name, so a later `device "x"` block
// changes only attributes it mentions.
package config_global

import (
	"os"
	"path/filepath"

	"github.com/AlexTransit/kiosk/log2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/juju/errors"
)

type configLoadStruct struct {
	log      *log2.Log
	includes []string
	bodies   []hcl.Body
}

var includeFile = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "include", LabelNames: []string{"path"}},
	},
}

func (c *configLoadStruct) readConfig(fileName string, optional bool) error {
	for _, v := range c.includes {
		if v == fileName {
			return nil
		}
	}
	c.includes = append(c.includes, fileName)
	src, err := os.ReadFile(fileName)
	if err != nil {
		if optional && os.IsNotExist(err) {
			c.log.Debugf("config optional include=%s not found", fileName)
			return nil
		}
		return errors.Annotatef(err, "read config file=%s", fileName)
	}
	file, diags := hclsyntax.ParseConfig(src, fileName, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return errors.Annotatef(diags, "parse config file=%s", fileName)
	}
	bc, _, diags := file.Body.PartialContent(includeFile)
	if diags.HasErrors() {
		return errors.Annotatef(diags, "config file=%s include", fileName)
	}
	c.bodies = append(c.bodies, file.Body)
	for _, block := range bc.Blocks {
		inc := IncludeConfig{Path: block.Labels[0]}
		if diags := gohcl.DecodeBody(block.Body, nil, &inc); diags.HasErrors() {
			return errors.Annotatef(diags, "config file=%s include=%s", fileName, inc.Path)
		}
		path := inc.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(fileName), path)
		}
		if err := c.readConfig(path, inc.Optional); err != nil {
			return err
		}
	}
	return nil
}

// ReadConfig loads fileName with all its includes.
func ReadConfig(log *log2.Log, fileName string) (*Config, error) {
	cc := configLoadStruct{log: log}
	if err := cc.readConfig(fileName, false); err != nil {
		return nil, err
	}
	c := &Config{}
	for i := range cc.bodies {
		if diags := gohcl.DecodeBody(cc.bodies[i], nil, c); diags.HasErrors() {
			return nil, errors.Annotatef(diags, "decode config file=%s", cc.bodies[i].MissingItemRange().Filename)
		}
		c.Include = nil
		if c.Hardware != nil {
			c.Hardware.mergeDevices()
		}
	}
	c.fill()
	log.Debugf("config files=%v devices=%v", cc.includes, c.DeviceNames())
	return c, nil
}

// Parse decodes single config source, includes are not followed.
func Parse(fileName string, src []byte) (*Config, error) {
	c := &Config{}
	if err := hclsimple.Decode(fileName, src, nil, c); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	c.Include = nil
	if c.Hardware != nil {
		c.Hardware.mergeDevices()
	}
	c.fill()
	return c, nil
}
