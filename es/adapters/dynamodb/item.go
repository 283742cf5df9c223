package dynamostore

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/getpup/pupstream/es"
)

func encodeItem(d *es.Document, token string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrPartitionKey: &types.AttributeValueMemberS{Value: d.PartitionKey},
		attrID:           &types.AttributeValueMemberS{Value: d.ID},
		attrStreamID:     &types.AttributeValueMemberS{Value: d.StreamID},
		attrType:         &types.AttributeValueMemberS{Value: d.Type.String()},
		attrVersion:      &types.AttributeValueMemberN{Value: strconv.FormatInt(d.Version, 10)},
		attrToken:        &types.AttributeValueMemberS{Value: token},
	}
	putPayload(item, attrMetadataType, attrMetadata, d.Metadata)
	switch d.Type {
	case es.DocumentTypeEvent:
		putPayload(item, attrPayloadType, attrPayload, d.Body)
	case es.DocumentTypeSnapshot:
		putPayload(item, attrPayloadType, attrPayload, d.Data)
	case es.DocumentTypeHeader:
	}
	return item
}

// putPayload stores p as a type attribute and a binary attribute. A missing
// type attribute means no payload.
func putPayload(item map[string]types.AttributeValue, typeAttr, dataAttr string, p *es.Payload) {
	if p == nil {
		return
	}
	item[typeAttr] = &types.AttributeValueMemberS{Value: p.Type}
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	item[dataAttr] = &types.AttributeValueMemberB{Value: data}
}

func decodeItem(item map[string]types.AttributeValue) (es.Document, error) {
	var (
		d   es.Document
		err error
	)
	if d.PartitionKey, err = stringAttr(item, attrPartitionKey); err != nil {
		return es.Document{}, err
	}
	if d.ID, err = stringAttr(item, attrID); err != nil {
		return es.Document{}, err
	}
	if d.StreamID, err = stringAttr(item, attrStreamID); err != nil {
		return es.Document{}, err
	}
	if d.Token, err = stringAttr(item, attrToken); err != nil {
		return es.Document{}, err
	}
	typ, err := stringAttr(item, attrType)
	if err != nil {
		return es.Document{}, err
	}
	if d.Type, err = es.ParseDocumentType(typ); err != nil {
		return es.Document{}, fmt.Errorf("item %q: %w", d.ID, err)
	}
	n, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return es.Document{}, fmt.Errorf("item %q: missing numeric %s", d.ID, attrVersion)
	}
	if d.Version, err = strconv.ParseInt(n.Value, 10, 64); err != nil {
		return es.Document{}, fmt.Errorf("item %q: %s: %w", d.ID, attrVersion, err)
	}

	if d.Metadata, err = payloadAttr(item, attrMetadataType, attrMetadata); err != nil {
		return es.Document{}, err
	}
	p, err := payloadAttr(item, attrPayloadType, attrPayload)
	if err != nil {
		return es.Document{}, err
	}
	switch d.Type {
	case es.DocumentTypeEvent:
		d.Body = p
	case es.DocumentTypeSnapshot:
		d.Data = p
	case es.DocumentTypeHeader:
	}

	if err := d.Validate(); err != nil {
		return es.Document{}, err
	}
	return d, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("item: missing string attribute %s", name)
	}
	return v.Value, nil
}

func payloadAttr(item map[string]types.AttributeValue, typeAttr, dataAttr string) (*es.Payload, error) {
	t, ok := item[typeAttr].(*types.AttributeValueMemberS)
	if !ok {
		return nil, nil
	}
	p := &es.Payload{Type: t.Value}
	switch v := item[dataAttr].(type) {
	case *types.AttributeValueMemberB:
		p.Data = v.Value
	case nil:
	default:
		return nil, fmt.Errorf("item: attribute %s is not binary", dataAttr)
	}
	return p, nil
}
