package storage

import (
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload codecs for the three point types. Optional page numbers are omitted
// when absent rather than stored as zero, so a missing marker and page 0 stay
// distinguishable.

func treePayload(tree *TreeRecord) map[string]any {
	return map[string]any{
		"type":        "tree",
		"document_id": tree.DocumentID,
		"root_id":     tree.RootID,
		"title":       tree.Title,
		"strategy":    tree.Strategy,
		"status":      tree.Status,
		"error":       tree.Error,
		"node_count":  tree.NodeCount,
		"chunk_count": tree.ChunkCount,
		"page_count":  tree.PageCount,
		"created_at":  tree.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  tree.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func treeFromPayload(id string, payload map[string]*qdrant.Value) *TreeRecord {
	return &TreeRecord{
		DocumentID: id,
		RootID:     payload["root_id"].GetStringValue(),
		Title:      payload["title"].GetStringValue(),
		Strategy:   payload["strategy"].GetStringValue(),
		Status:     payload["status"].GetStringValue(),
		Error:      payload["error"].GetStringValue(),
		NodeCount:  int(payload["node_count"].GetIntegerValue()),
		ChunkCount: int(payload["chunk_count"].GetIntegerValue()),
		PageCount:  int(payload["page_count"].GetIntegerValue()),
		CreatedAt:  parseTime(payload["created_at"].GetStringValue()),
		UpdatedAt:  parseTime(payload["updated_at"].GetStringValue()),
	}
}

func nodePayload(node *NodeRecord) map[string]any {
	payload := map[string]any{
		"type":          "node",
		"document_id":   node.DocumentID,
		"parent_id":     node.ParentID,
		"level":         node.Level,
		"sibling_index": node.SiblingIndex,
		"title":         node.Title,
		"path":          node.Path,
		"summary":       node.Summary,
		"char_start":    node.CharStart,
		"char_end":      node.CharEnd,
		"body_end":      node.BodyEnd,
	}
	putPage(payload, "page_start", node.PageStart)
	putPage(payload, "page_end", node.PageEnd)
	return payload
}

func nodeFromPayload(id string, payload map[string]*qdrant.Value) *NodeRecord {
	return &NodeRecord{
		ID:           id,
		DocumentID:   payload["document_id"].GetStringValue(),
		ParentID:     payload["parent_id"].GetStringValue(),
		Level:        int(payload["level"].GetIntegerValue()),
		SiblingIndex: int(payload["sibling_index"].GetIntegerValue()),
		Title:        payload["title"].GetStringValue(),
		Path:         payload["path"].GetStringValue(),
		Summary:      payload["summary"].GetStringValue(),
		CharStart:    int(payload["char_start"].GetIntegerValue()),
		CharEnd:      int(payload["char_end"].GetIntegerValue()),
		BodyEnd:      int(payload["body_end"].GetIntegerValue()),
		PageStart:    getPage(payload, "page_start"),
		PageEnd:      getPage(payload, "page_end"),
	}
}

func chunkPayload(chunk *ChunkRecord) map[string]any {
	payload := map[string]any{
		"type":          "chunk",
		"document_id":   chunk.DocumentID,
		"chunk_index":   chunk.Index,
		"content":       chunk.Content,
		"char_start":    chunk.CharStart,
		"char_end":      chunk.CharEnd,
		"node_id":       chunk.NodeID,
		"node_path":     chunk.NodePath,
		"level":         chunk.Level,
		"section_title": chunk.SectionTitle,
	}
	putPage(payload, "page_start", chunk.PageStart)
	putPage(payload, "page_end", chunk.PageEnd)
	if chunk.ParentChunkID != "" {
		payload["parent_chunk_id"] = chunk.ParentChunkID
		payload["parent_char_start"] = chunk.ParentCharStart
		payload["parent_char_end"] = chunk.ParentCharEnd
	}
	return payload
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value) *ChunkRecord {
	chunk := &ChunkRecord{
		ID:           id,
		DocumentID:   payload["document_id"].GetStringValue(),
		Index:        int(payload["chunk_index"].GetIntegerValue()),
		Content:      payload["content"].GetStringValue(),
		CharStart:    int(payload["char_start"].GetIntegerValue()),
		CharEnd:      int(payload["char_end"].GetIntegerValue()),
		NodeID:       payload["node_id"].GetStringValue(),
		NodePath:     payload["node_path"].GetStringValue(),
		Level:        int(payload["level"].GetIntegerValue()),
		SectionTitle: payload["section_title"].GetStringValue(),
		PageStart:    getPage(payload, "page_start"),
		PageEnd:      getPage(payload, "page_end"),
	}
	if parentID, ok := payload["parent_chunk_id"]; ok {
		chunk.ParentChunkID = parentID.GetStringValue()
		chunk.ParentCharStart = int(payload["parent_char_start"].GetIntegerValue())
		chunk.ParentCharEnd = int(payload["parent_char_end"].GetIntegerValue())
	}
	return chunk
}

func putPage(payload map[string]any, key string, page *int) {
	if page != nil {
		payload[key] = *page
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func getPage(payload map[string]*qdrant.Value, key string) *int {
	value, ok := payload[key]
	if !ok {
		return nil
	}
	page := int(value.GetIntegerValue())
	return &page
}
