package domain

// Section is one heading-delimited part of an ingested document.
// Ephemeral: exists only between parsing and chunking.
type Section struct {
	Heading string
	Content string
}

// ChunkMetadata carries the heading a chunk was cut from.
type ChunkMetadata struct {
	MainHeading string
}

// Chunk is a token-bounded passage, the unit of vector indexing.
// Created by the chunker, consumed once by the indexer, never mutated.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}
