// Package hemelb knows the HemeLB input layout: which geometry file an XML
// configuration refers to, and how a job template is filled in for a run.
package hemelb

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// geometryPath locates the geometry data file element below the root.
const geometryPath = "geometry/datafile"

var ErrNoGeometry = errors.New("no geometry/datafile path in configuration")

// GeometryFile returns the path attribute of geometry/datafile in the HemeLB
// XML configuration at xmlFile, exactly as written in the file.
func GeometryFile(xmlFile string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(xmlFile); err != nil {
		return "", fmt.Errorf("reading %s: %w", xmlFile, err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%s: %w", xmlFile, ErrNoGeometry)
	}
	el := root.FindElement(geometryPath)
	if el == nil {
		return "", fmt.Errorf("%s: %w", xmlFile, ErrNoGeometry)
	}
	attr := el.SelectAttr("path")
	if attr == nil {
		return "", fmt.Errorf("%s: %w", xmlFile, ErrNoGeometry)
	}
	return attr.Value, nil
}
