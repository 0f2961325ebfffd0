package source

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// Catalog is the subset of a THREDDS InvCatalog document needed to locate
// product files.
type Catalog struct {
	XMLName  xml.Name  `xml:"catalog"`
	Services []Service `xml:"service"`
	Datasets []Dataset `xml:"dataset"`

	url *url.URL
}

// Service is an access method advertised by the catalog. Compound services
// nest their members.
type Service struct {
	Name     string    `xml:"name,attr"`
	Type     string    `xml:"serviceType,attr"`
	Base     string    `xml:"base,attr"`
	Services []Service `xml:"service"`
}

// Dataset is a catalog entry. Only leaf datasets carry a URL path.
type Dataset struct {
	Name     string    `xml:"name,attr"`
	ID       string    `xml:"ID,attr"`
	URLPath  string    `xml:"urlPath,attr"`
	Size     DataSize  `xml:"dataSize"`
	Modified string    `xml:"date"`
	Datasets []Dataset `xml:"dataset"`
}

// DataSize is the advertised size of a dataset.
type DataSize struct {
	Units string  `xml:"units,attr"`
	Value float64 `xml:",chardata"`
}

// ParseCatalog decodes a catalog document fetched from catalogURL. The URL is
// kept to resolve service bases.
func ParseCatalog(catalogURL string, body []byte) (*Catalog, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := xml.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	c.url = u
	return &c, nil
}

// Files returns every leaf dataset of the catalog in document order.
func (c *Catalog) Files() []Dataset {
	var files []Dataset
	var walk func([]Dataset)
	walk = func(ds []Dataset) {
		for _, d := range ds {
			if d.URLPath != "" {
				files = append(files, d)
			}
			walk(d.Datasets)
		}
	}
	walk(c.Datasets)
	return files
}

// Lookup finds the dataset with the given file name.
func (c *Catalog) Lookup(name string) (Dataset, bool) {
	for _, d := range c.Files() {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}

// service finds the first service of the given type, searching compound
// services too.
func (c *Catalog) service(serviceType string) (Service, bool) {
	var find func([]Service) (Service, bool)
	find = func(ss []Service) (Service, bool) {
		for _, s := range ss {
			if strings.EqualFold(s.Type, serviceType) {
				return s, true
			}
			if found, ok := find(s.Services); ok {
				return found, true
			}
		}
		return Service{}, false
	}
	return find(c.Services)
}

// FileURL returns the plain HTTP download URL of a dataset.
func (c *Catalog) FileURL(d Dataset) (string, error) {
	s, ok := c.service("HTTPServer")
	if !ok {
		return "", fmt.Errorf("catalog %s has no HTTPServer service", c.url)
	}
	ref, err := url.Parse(s.Base + d.URLPath)
	if err != nil {
		return "", err
	}
	return c.url.ResolveReference(ref).String(), nil
}
