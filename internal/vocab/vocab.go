// Package vocab holds the namespace IRIs used by manifests, catalogues and
// the remote system graph.
package vocab

// Namespaces
const (
	RDF       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS      = "http://www.w3.org/2000/01/rdf-schema#"
	XSD       = "http://www.w3.org/2001/XMLSchema#"
	OWL       = "http://www.w3.org/2002/07/owl#"
	SKOS      = "http://www.w3.org/2004/02/skos/core#"
	DCAT      = "http://www.w3.org/ns/dcat#"
	DCTerms   = "http://purl.org/dc/terms/"
	Schema    = "https://schema.org/"
	Prof      = "http://www.w3.org/ns/dx/prof/"
	SH        = "http://www.w3.org/ns/shacl#"
	Prez      = "https://prez.dev/"
	MRR       = "https://prez.dev/ManifestResourceRoles/"
	MVT       = "https://prez.dev/ManifestVersionTypes/"
	Olis      = "https://olis.dev/"
	GeoSPARQL = "http://www.opengis.net/ont/geosparql#"
)

// Frequently used terms
const (
	RDFType = RDF + "type"

	XSDString   = XSD + "string"
	XSDDate     = XSD + "date"
	XSDDateTime = XSD + "dateTime"
	XSDBoolean  = XSD + "boolean"
	XSDInteger  = XSD + "integer"

	Manifest = Prez + "Manifest"
	// Sync is an optional boolean on a resource or artifact node; false
	// excludes the artifact from write phases.
	Sync = Prez + "sync"

	ProfHasResource = Prof + "hasResource"
	ProfHasArtifact = Prof + "hasArtifact"
	ProfHasRole     = Prof + "hasRole"

	SchemaContentLocation = Schema + "contentLocation"
	SchemaMainEntity      = Schema + "mainEntity"
	SchemaDateModified    = Schema + "dateModified"
	SchemaVersion         = Schema + "version"
	SchemaName            = Schema + "name"
	SchemaHasPart         = Schema + "hasPart"
	SchemaDataCatalog     = Schema + "DataCatalog"
	SchemaDataset         = Schema + "Dataset"
	SchemaCreativeWork    = Schema + "CreativeWork"
	SchemaDefinedTerm     = Schema + "DefinedTerm"
	SchemaAdditionalType  = Schema + "additionalType"
	SchemaValue           = Schema + "value"

	DCTermsModified   = DCTerms + "modified"
	DCTermsHasPart    = DCTerms + "hasPart"
	DCTermsTitle      = DCTerms + "title"
	DCTermsConformsTo = DCTerms + "conformsTo"

	DCATCatalog  = DCAT + "Catalog"
	DCATResource = DCAT + "Resource"

	SKOSConceptScheme = SKOS + "ConceptScheme"
	SKOSPrefLabel     = SKOS + "prefLabel"

	OWLOntology    = OWL + "Ontology"
	OWLVersionIRI  = OWL + "versionIRI"
	OWLVersionInfo = OWL + "versionInfo"

	SHTargetClass = SH + "targetClass"

	GeoFeatureCollection = GeoSPARQL + "FeatureCollection"

	// Conformance profiles with built-in target classes.
	ProfileVocPub    = "https://w3id.org/profile/vocpub"
	ProfileIDNCP     = "https://data.idnau.org/pid/cp"
	ProfileGeoSPARQL = "http://www.opengis.net/def/geosparql"

	OlisSystemGraph  = Olis + "SystemGraph"
	OlisVirtualGraph = Olis + "VirtualGraph"
	OlisIsAliasFor   = Olis + "isAliasFor"

	MVTGitCommitHash = MVT + "GitCommitHash"

	// BackgroundGraph collects all label artifacts.
	BackgroundGraph = "http://background"
)

// CatalogueGraphSuffix is appended to a catalogue IRI to name the graph
// holding the catalogue's own metadata, keeping the bare IRI free for the
// virtual graph alias.
const CatalogueGraphSuffix = "-catalogue"
